package gds

import (
	"context"
	"encoding/json"
	"time"
)

const galileoTimeLayout = "2006-01-02T15:04:05"

// GalileoAdapter implements the full operation set against the Travelport
// Universal API.
type GalileoAdapter struct {
	client *Client
}

func NewGalileoAdapter(client *Client) Adapter {
	return &GalileoAdapter{client: client}
}

func (a *GalileoAdapter) Vendor() string { return a.client.Vendor() }

func (a *GalileoAdapter) SearchFlights(ctx context.Context, params SearchParams) (*OperationResult, error) {
	req := airLowFareSearchReq{
		TargetBranch:           a.client.TargetBranch(),
		BillingPointOfSaleInfo: billingPointOfSaleInfo{Origin: a.client.PointOfSale()},
		PreferredCabinClass:    params.CabinClass,
	}
	for _, p := range params.Passengers {
		req.SearchPassenger = append(req.SearchPassenger, searchPassenger{Code: p.Code, Quantity: p.Quantity})
	}
	for _, leg := range params.Legs {
		req.SearchAirLeg = append(req.SearchAirLeg, searchAirLeg{
			SearchOrigin:        leg.Origin,
			SearchDestination:   leg.Destination,
			SearchDepartureTime: leg.Departure.Format(galileoTimeLayout),
		})
	}

	body, terr := a.client.Post(ctx, "/air/lowfaresearch", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoSearchRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed search response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}

	data := SearchData{}
	for _, sol := range rsp.AirPricingSolution {
		amount, err := parseAmountMinor(sol.TotalPrice)
		if err != nil {
			continue
		}
		opt := FareOption{
			PricingSolutionKey: sol.Key,
			Carrier:            sol.Carrier,
			TotalAmountMinor:   amount,
			Currency:           "USD",
			Segments:           toSegments(sol.AirSegmentRef),
		}
		data.Options = append(data.Options, opt)
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *GalileoAdapter) GetFareRules(ctx context.Context, params FareRulesParams) (*OperationResult, error) {
	req := airFareRulesReq{
		TargetBranch: a.client.TargetBranch(),
		FareRuleKey: fareRuleKey{
			FareBasis:   params.FareBasis,
			Origin:      params.Origin,
			Destination: params.Destination,
			Carrier:     params.Carrier,
		},
	}

	body, terr := a.client.Post(ctx, "/air/farerules", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoFareRulesRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed fare rules response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}

	data := FareRulesData{Refundable: rsp.Refundable, Rules: rsp.RuleText}
	if rsp.RefundPenalty != nil {
		if v, err := parseAmountMinor(rsp.RefundPenalty.Amount); err == nil {
			data.RefundPenaltyMinor = v
		}
	}
	if rsp.ChangePenalty != nil {
		if v, err := parseAmountMinor(rsp.ChangePenalty.Amount); err == nil {
			data.ChangePenaltyMinor = v
		}
	}
	if rsp.RefundDeadline != "" {
		if t, err := time.Parse(galileoTimeLayout, rsp.RefundDeadline); err == nil {
			data.RefundDeadline = t
		}
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *GalileoAdapter) CreateBooking(ctx context.Context, params BookingParams) (*OperationResult, error) {
	req := airBookReq{
		TargetBranch:       a.client.TargetBranch(),
		AirPricingSolution: airPricingSolutionRef{Key: params.PricingSolutionKey},
	}
	for _, t := range params.Travelers {
		req.BookingTraveler = append(req.BookingTraveler, bookingTraveler{
			First:          t.FirstName,
			Last:           t.LastName,
			TravelerType:   t.PTC,
			DOB:            t.Birthdate.Format("2006-01-02"),
			DocumentType:   t.DocumentType,
			DocumentNumber: t.DocumentNumber,
			DocumentExpiry: t.DocumentExpiry.Format("2006-01-02"),
			Nationality:    t.Nationality,
			Email:          params.Contact.Email,
			Phone:          params.Contact.Phone,
		})
	}

	body, terr := a.client.Post(ctx, "/air/book", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}
	return a.decodeUniversalRecord(body)
}

func (a *GalileoAdapter) RetrieveBooking(ctx context.Context, locator string) (*OperationResult, error) {
	req := universalRecordRetrieveReq{
		TargetBranch:               a.client.TargetBranch(),
		UniversalRecordLocatorCode: locator,
	}

	body, terr := a.client.Post(ctx, "/universalrecord/retrieve", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}
	return a.decodeUniversalRecord(body)
}

func (a *GalileoAdapter) ModifyBooking(ctx context.Context, params ModifyParams) (*OperationResult, error) {
	req := universalRecordModifyReq{
		TargetBranch: a.client.TargetBranch(),
		UniversalModifyCmd: universalModifyCmd{
			UniversalRecordLocatorCode: params.Locator,
			AddRemark:                  params.Remarks,
		},
	}

	body, terr := a.client.Post(ctx, "/universalrecord/modify", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}
	return a.decodeUniversalRecord(body)
}

func (a *GalileoAdapter) CancelBooking(ctx context.Context, locator string) (*OperationResult, error) {
	req := airCancelReq{
		TargetBranch:               a.client.TargetBranch(),
		UniversalRecordLocatorCode: locator,
	}

	body, terr := a.client.Post(ctx, "/air/cancel", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoBookRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed cancel response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	return successResult(a.Vendor(), BookingData{Locator: locator, Status: "CANCELLED"}, body), nil
}

func (a *GalileoAdapter) IssueTicket(ctx context.Context, params TicketParams) (*OperationResult, error) {
	req := airTicketReq{
		TargetBranch:               a.client.TargetBranch(),
		UniversalRecordLocatorCode: params.Locator,
		BookingTravelerRef:         params.TravelerKeys,
	}
	if params.Commission > 0 {
		req.AirTicketingModifiers.Commission = &commission{
			Amount:   formatAmountMinor(params.Commission),
			Currency: "USD",
		}
	}

	body, terr := a.client.Post(ctx, "/air/ticket", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoTicketRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		// The document may have been issued even though the body is
		// unreadable; treat as unknown outcome.
		return &OperationResult{Vendor: a.Vendor(), ErrorKind: ErrorKindTransient, Message: "malformed ticket response", OutcomeUnknown: true, Raw: body}, nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	if rsp.ETR == nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, "no electronic ticket record returned", body), nil
	}

	amount, _ := parseAmountMinor(rsp.ETR.TotalPrice)
	data := TicketData{
		TicketNumber:     rsp.ETR.TicketNumber,
		TotalAmountMinor: amount,
		Currency:         "USD",
		Coupons:          toSegments(rsp.ETR.Coupon),
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *GalileoAdapter) VoidTicket(ctx context.Context, params VoidParams) (*OperationResult, error) {
	req := airVoidDocumentReq{
		TargetBranch: a.client.TargetBranch(),
		TicketNumber: params.TicketNumber,
	}

	body, terr := a.client.Post(ctx, "/air/void", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoVoidRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return &OperationResult{Vendor: a.Vendor(), ErrorKind: ErrorKindTransient, Message: "malformed void response", OutcomeUnknown: true, Raw: body}, nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	if !rsp.VoidResultSuccess {
		return failureResult(a.Vendor(), ErrorKindBusiness, "void rejected by vendor", body), nil
	}
	return successResult(a.Vendor(), nil, body), nil
}

func (a *GalileoAdapter) RefundTicket(ctx context.Context, params RefundParams) (*OperationResult, error) {
	req := airRefundReq{
		TargetBranch: a.client.TargetBranch(),
		TicketNumber: params.TicketNumber,
		RefundType:   string(params.RefundType),
	}
	if params.AmountMinor > 0 {
		req.RefundAmount = &refundAmount{
			Amount:   formatAmountMinor(params.AmountMinor),
			Currency: params.Currency,
		}
	}

	body, terr := a.client.Post(ctx, "/air/refund", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoRefundRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return &OperationResult{Vendor: a.Vendor(), ErrorKind: ErrorKindTransient, Message: "malformed refund response", OutcomeUnknown: true, Raw: body}, nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}

	data := RefundData{Currency: params.Currency}
	if rsp.RefundAmount != nil {
		if v, err := parseAmountMinor(rsp.RefundAmount.Amount); err == nil {
			data.RefundedAmountMinor = v
		}
		if rsp.RefundAmount.Currency != "" {
			data.Currency = rsp.RefundAmount.Currency
		}
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *GalileoAdapter) ReissueTicket(ctx context.Context, params ReissueParams) (*OperationResult, error) {
	req := airExchangeReq{
		TargetBranch:               a.client.TargetBranch(),
		TicketNumber:               params.TicketNumber,
		UniversalRecordLocatorCode: params.Locator,
		AirExchangeModifiers:       airExchangeModifiers{ExchangeType: string(params.ExchangeType)},
	}
	for _, seg := range params.NewSegments {
		req.AirSegment = append(req.AirSegment, exchangeAirSegment{
			Origin:        seg.Origin,
			Destination:   seg.Destination,
			FlightNumber:  seg.FlightNumber,
			DepartureTime: seg.Departure.Format(galileoTimeLayout),
		})
	}

	body, terr := a.client.Post(ctx, "/air/exchange", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoExchangeRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return &OperationResult{Vendor: a.Vendor(), ErrorKind: ErrorKindTransient, Message: "malformed exchange response", OutcomeUnknown: true, Raw: body}, nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	if rsp.ETR == nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, "no replacement ticket returned", body), nil
	}

	data := ExchangeData{NewTicketNumber: rsp.ETR.TicketNumber, Currency: "USD", Coupons: toSegments(rsp.ETR.Coupon)}
	if rsp.FareDifference != nil {
		if v, err := parseAmountMinor(rsp.FareDifference.Amount); err == nil {
			data.FareDifferenceMinor = v
		}
		if rsp.FareDifference.Currency != "" {
			data.Currency = rsp.FareDifference.Currency
		}
	}
	if rsp.Penalty != nil {
		if v, err := parseAmountMinor(rsp.Penalty.Amount); err == nil {
			data.PenaltyMinor = v
		}
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *GalileoAdapter) GetSeatMap(ctx context.Context, params SeatMapParams) (*OperationResult, error) {
	req := seatMapReq{
		TargetBranch:  a.client.TargetBranch(),
		Carrier:       params.Carrier,
		FlightNumber:  params.FlightNumber,
		Origin:        params.Origin,
		Destination:   params.Destination,
		DepartureTime: params.Departure.Format(galileoTimeLayout),
	}

	body, terr := a.client.Post(ctx, "/air/seatmap", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoSeatMapRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed seat map response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}

	data := SeatMapData{}
	for _, row := range rsp.Rows {
		r := SeatRow{Row: row.Row}
		for _, seat := range row.Seats {
			price, _ := parseAmountMinor(seat.Price)
			r.Seats = append(r.Seats, Seat{Column: seat.Column, Available: seat.Available, PriceMinor: price})
		}
		data.Rows = append(data.Rows, r)
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *GalileoAdapter) AddAncillaryServices(ctx context.Context, params AncillaryParams) (*OperationResult, error) {
	req := airMerchandisingReq{
		TargetBranch:               a.client.TargetBranch(),
		UniversalRecordLocatorCode: params.Locator,
	}
	for _, svc := range params.Services {
		req.OptionalService = append(req.OptionalService, optionalService{
			ServiceCode:        svc.Code,
			BookingTravelerRef: svc.TravelerKey,
			Amount:             formatAmountMinor(svc.AmountMinor),
			Currency:           svc.Currency,
		})
	}

	body, terr := a.client.Post(ctx, "/air/merchandising", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}
	return a.decodeUniversalRecord(body)
}

func (a *GalileoAdapter) QueuePlace(ctx context.Context, params QueueParams) (*OperationResult, error) {
	req := queuePlaceReq{
		TargetBranch:               a.client.TargetBranch(),
		Queue:                      params.Queue,
		UniversalRecordLocatorCode: params.Locator,
	}

	body, terr := a.client.Post(ctx, "/queue/place", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoQueueRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed queue response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	return successResult(a.Vendor(), QueueData{Locators: rsp.LocatorCode}, body), nil
}

func (a *GalileoAdapter) QueueRetrieve(ctx context.Context, params QueueParams) (*OperationResult, error) {
	req := queueRetrieveReq{TargetBranch: a.client.TargetBranch(), Queue: params.Queue}

	body, terr := a.client.Post(ctx, "/queue/retrieve", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp galileoQueueRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed queue response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	return successResult(a.Vendor(), QueueData{Locators: rsp.LocatorCode}, body), nil
}

func (a *GalileoAdapter) decodeUniversalRecord(body []byte) (*OperationResult, error) {
	var rsp galileoBookRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed universal record response", body), nil
	}
	if rsp.Fault != nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Fault.Message, body), nil
	}
	if rsp.UniversalRecord == nil {
		return failureResult(a.Vendor(), ErrorKindBusiness, "no universal record returned", body), nil
	}

	amount, _ := parseAmountMinor(rsp.UniversalRecord.TotalPrice)
	data := BookingData{
		Locator:          rsp.UniversalRecord.LocatorCode,
		TotalAmountMinor: amount,
		Currency:         "USD",
		Status:           rsp.UniversalRecord.Status,
		Segments:         toSegments(rsp.UniversalRecord.AirSegment),
	}
	for _, etr := range rsp.UniversalRecord.ETR {
		data.TicketNumbers = append(data.TicketNumbers, etr.TicketNumber)
	}
	return successResult(a.Vendor(), data, body), nil
}

func toSegments(in []galileoSegment) []SegmentInfo {
	out := make([]SegmentInfo, 0, len(in))
	for _, s := range in {
		dep, _ := time.Parse(galileoTimeLayout, s.DepartureTime)
		out = append(out, SegmentInfo{
			Origin:        s.Origin,
			Destination:   s.Destination,
			FlightNumber:  s.FlightNumber,
			DepartureTime: dep,
		})
	}
	return out
}

var _ Adapter = (*GalileoAdapter)(nil)
