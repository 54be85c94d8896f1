package gds

import (
	"context"
	"encoding/json"
	"time"
)

// AmadeusAdapter covers the reservation subset of the contract. Ticketing
// document operations are not wired for this vendor yet and report
// unsupported.
type AmadeusAdapter struct {
	client *Client
}

func NewAmadeusAdapter(client *Client) Adapter {
	return &AmadeusAdapter{client: client}
}

func (a *AmadeusAdapter) Vendor() string { return a.client.Vendor() }

type amadeusError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type amadeusOffer struct {
	ID    string `json:"id"`
	Price struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"price"`
	Carrier    string `json:"validatingCarrier"`
	Itineraries []struct {
		Segments []struct {
			Departure struct {
				IataCode string `json:"iataCode"`
				At       string `json:"at"`
			} `json:"departure"`
			Arrival struct {
				IataCode string `json:"iataCode"`
			} `json:"arrival"`
			Number string `json:"number"`
		} `json:"segments"`
	} `json:"itineraries"`
}

type amadeusSearchRsp struct {
	Errors []amadeusError `json:"errors"`
	Data   []amadeusOffer `json:"data"`
}

type amadeusOrderRsp struct {
	Errors []amadeusError `json:"errors"`
	Data   struct {
		ID                 string `json:"id"`
		AssociatedRecords  []struct {
			Reference string `json:"reference"`
		} `json:"associatedRecords"`
		Status string `json:"status"`
		Price  struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"price"`
	} `json:"data"`
}

func (a *AmadeusAdapter) SearchFlights(ctx context.Context, params SearchParams) (*OperationResult, error) {
	type originDestination struct {
		Origin        string `json:"originLocationCode"`
		Destination   string `json:"destinationLocationCode"`
		DepartureDate string `json:"departureDate"`
	}
	type traveler struct {
		TravelerType string `json:"travelerType"`
		Count        int    `json:"count"`
	}
	req := struct {
		OriginDestinations []originDestination `json:"originDestinations"`
		Travelers          []traveler          `json:"travelers"`
		CabinClass         string              `json:"cabinClass,omitempty"`
	}{CabinClass: params.CabinClass}
	for _, leg := range params.Legs {
		req.OriginDestinations = append(req.OriginDestinations, originDestination{
			Origin:        leg.Origin,
			Destination:   leg.Destination,
			DepartureDate: leg.Departure.Format("2006-01-02"),
		})
	}
	for _, p := range params.Passengers {
		req.Travelers = append(req.Travelers, traveler{TravelerType: p.Code, Count: p.Quantity})
	}

	body, terr := a.client.Post(ctx, "/v2/shopping/flight-offers", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp amadeusSearchRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed search response", body), nil
	}
	if len(rsp.Errors) > 0 {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Errors[0].Detail, body), nil
	}

	data := SearchData{}
	for _, offer := range rsp.Data {
		amount, err := parseAmountMinor(offer.Price.Total)
		if err != nil {
			continue
		}
		opt := FareOption{
			PricingSolutionKey: offer.ID,
			Carrier:            offer.Carrier,
			TotalAmountMinor:   amount,
			Currency:           offer.Price.Currency,
		}
		for _, itin := range offer.Itineraries {
			for _, seg := range itin.Segments {
				dep, _ := time.Parse("2006-01-02T15:04:05", seg.Departure.At)
				opt.Segments = append(opt.Segments, SegmentInfo{
					Origin:        seg.Departure.IataCode,
					Destination:   seg.Arrival.IataCode,
					FlightNumber:  seg.Number,
					DepartureTime: dep,
				})
			}
		}
		data.Options = append(data.Options, opt)
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *AmadeusAdapter) GetFareRules(ctx context.Context, params FareRulesParams) (*OperationResult, error) {
	req := struct {
		FareBasis   string `json:"fareBasis"`
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Carrier     string `json:"carrierCode"`
	}{params.FareBasis, params.Origin, params.Destination, params.Carrier}

	body, terr := a.client.Post(ctx, "/v1/shopping/fare-rules", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp struct {
		Errors []amadeusError `json:"errors"`
		Data   struct {
			Refundable    bool     `json:"refundable"`
			RefundPenalty string   `json:"refundPenalty"`
			ChangePenalty string   `json:"changePenalty"`
			Text          []string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed fare rules response", body), nil
	}
	if len(rsp.Errors) > 0 {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Errors[0].Detail, body), nil
	}

	data := FareRulesData{Refundable: rsp.Data.Refundable, Rules: rsp.Data.Text}
	if v, err := parseAmountMinor(rsp.Data.RefundPenalty); err == nil {
		data.RefundPenaltyMinor = v
	}
	if v, err := parseAmountMinor(rsp.Data.ChangePenalty); err == nil {
		data.ChangePenaltyMinor = v
	}
	return successResult(a.Vendor(), data, body), nil
}

func (a *AmadeusAdapter) CreateBooking(ctx context.Context, params BookingParams) (*OperationResult, error) {
	type travelerReq struct {
		FirstName    string `json:"firstName"`
		LastName     string `json:"lastName"`
		TravelerType string `json:"travelerType"`
		DateOfBirth  string `json:"dateOfBirth"`
	}
	req := struct {
		FlightOfferID string        `json:"flightOfferId"`
		Travelers     []travelerReq `json:"travelers"`
		ContactEmail  string        `json:"contactEmail"`
		ContactPhone  string        `json:"contactPhone"`
	}{FlightOfferID: params.PricingSolutionKey, ContactEmail: params.Contact.Email, ContactPhone: params.Contact.Phone}
	for _, t := range params.Travelers {
		req.Travelers = append(req.Travelers, travelerReq{
			FirstName:    t.FirstName,
			LastName:     t.LastName,
			TravelerType: t.PTC,
			DateOfBirth:  t.Birthdate.Format("2006-01-02"),
		})
	}

	body, terr := a.client.Post(ctx, "/v1/booking/flight-orders", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}
	return a.decodeOrder(body)
}

func (a *AmadeusAdapter) RetrieveBooking(ctx context.Context, locator string) (*OperationResult, error) {
	req := struct {
		Reference string `json:"reference"`
	}{locator}

	body, terr := a.client.Post(ctx, "/v1/booking/flight-orders/retrieve", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}
	return a.decodeOrder(body)
}

func (a *AmadeusAdapter) CancelBooking(ctx context.Context, locator string) (*OperationResult, error) {
	req := struct {
		Reference string `json:"reference"`
	}{locator}

	body, terr := a.client.Post(ctx, "/v1/booking/flight-orders/cancel", req)
	if terr != nil {
		return transportFailure(a.Vendor(), terr), nil
	}

	var rsp amadeusOrderRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed cancel response", body), nil
	}
	if len(rsp.Errors) > 0 {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Errors[0].Detail, body), nil
	}
	return successResult(a.Vendor(), BookingData{Locator: locator, Status: "CANCELLED"}, body), nil
}

func (a *AmadeusAdapter) ModifyBooking(ctx context.Context, params ModifyParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "modify_booking"), nil
}

func (a *AmadeusAdapter) IssueTicket(ctx context.Context, params TicketParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "issue_ticket"), nil
}

func (a *AmadeusAdapter) VoidTicket(ctx context.Context, params VoidParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "void_ticket"), nil
}

func (a *AmadeusAdapter) RefundTicket(ctx context.Context, params RefundParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "refund_ticket"), nil
}

func (a *AmadeusAdapter) ReissueTicket(ctx context.Context, params ReissueParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "reissue_ticket"), nil
}

func (a *AmadeusAdapter) GetSeatMap(ctx context.Context, params SeatMapParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "get_seat_map"), nil
}

func (a *AmadeusAdapter) AddAncillaryServices(ctx context.Context, params AncillaryParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "add_ancillary_services"), nil
}

func (a *AmadeusAdapter) QueuePlace(ctx context.Context, params QueueParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "queue_place"), nil
}

func (a *AmadeusAdapter) QueueRetrieve(ctx context.Context, params QueueParams) (*OperationResult, error) {
	return unsupportedResult(a.Vendor(), "queue_retrieve"), nil
}

func (a *AmadeusAdapter) decodeOrder(body []byte) (*OperationResult, error) {
	var rsp amadeusOrderRsp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return failureResult(a.Vendor(), ErrorKindTransient, "malformed order response", body), nil
	}
	if len(rsp.Errors) > 0 {
		return failureResult(a.Vendor(), ErrorKindBusiness, rsp.Errors[0].Detail, body), nil
	}

	amount, _ := parseAmountMinor(rsp.Data.Price.Total)
	data := BookingData{
		Locator:          rsp.Data.ID,
		TotalAmountMinor: amount,
		Currency:         rsp.Data.Price.Currency,
		Status:           rsp.Data.Status,
	}
	if len(rsp.Data.AssociatedRecords) > 0 {
		data.Locator = rsp.Data.AssociatedRecords[0].Reference
	}
	return successResult(a.Vendor(), data, body), nil
}

var _ Adapter = (*AmadeusAdapter)(nil)
