package gds

// Galileo (Travelport Universal API) wire shapes. Field names and nesting
// mirror the vendor schema and must not be renamed.

type billingPointOfSaleInfo struct {
	Origin string `json:"origin"`
}

type searchPassenger struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

type searchAirLeg struct {
	SearchOrigin        string `json:"searchOrigin"`
	SearchDestination   string `json:"searchDestination"`
	SearchDepartureTime string `json:"searchDepartureTime"`
}

type airLowFareSearchReq struct {
	TargetBranch           string                 `json:"targetBranch"`
	BillingPointOfSaleInfo billingPointOfSaleInfo `json:"billingPointOfSaleInfo"`
	SearchPassenger        []searchPassenger      `json:"searchPassenger"`
	SearchAirLeg           []searchAirLeg         `json:"searchAirLeg"`
	PreferredCabinClass    string                 `json:"preferredCabinClass,omitempty"`
}

type bookingTraveler struct {
	First          string `json:"first"`
	Last           string `json:"last"`
	TravelerType   string `json:"travelerType"`
	DOB            string `json:"dob"`
	DocumentType   string `json:"documentType,omitempty"`
	DocumentNumber string `json:"documentNumber,omitempty"`
	DocumentExpiry string `json:"documentExpiry,omitempty"`
	Nationality    string `json:"nationality,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

type airPricingSolutionRef struct {
	Key string `json:"key"`
}

type airBookReq struct {
	TargetBranch       string                `json:"targetBranch"`
	AirPricingSolution airPricingSolutionRef `json:"airPricingSolution"`
	BookingTraveler    []bookingTraveler     `json:"bookingTraveler"`
}

type universalRecordRetrieveReq struct {
	TargetBranch               string `json:"targetBranch"`
	UniversalRecordLocatorCode string `json:"universalRecordLocatorCode"`
}

type airCancelReq struct {
	TargetBranch               string `json:"targetBranch"`
	UniversalRecordLocatorCode string `json:"universalRecordLocatorCode"`
}

type universalModifyCmd struct {
	UniversalRecordLocatorCode string   `json:"universalRecordLocatorCode"`
	AddRemark                  []string `json:"addRemark,omitempty"`
}

type universalRecordModifyReq struct {
	TargetBranch       string             `json:"targetBranch"`
	UniversalModifyCmd universalModifyCmd `json:"universalModifyCmd"`
}

type airTicketingModifiers struct {
	Commission *commission `json:"commission,omitempty"`
}

type commission struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type airTicketReq struct {
	TargetBranch               string                `json:"targetBranch"`
	UniversalRecordLocatorCode string                `json:"universalRecordLocatorCode"`
	BookingTravelerRef         []string              `json:"bookingTravelerRef,omitempty"`
	AirTicketingModifiers      airTicketingModifiers `json:"airTicketingModifiers"`
}

type airVoidDocumentReq struct {
	TargetBranch string `json:"targetBranch"`
	TicketNumber string `json:"ticketNumber"`
}

type refundAmount struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type airRefundReq struct {
	TargetBranch string        `json:"targetBranch"`
	TicketNumber string        `json:"ticketNumber"`
	RefundType   string        `json:"refundType"`
	RefundAmount *refundAmount `json:"refundAmount,omitempty"`
}

type airExchangeModifiers struct {
	ExchangeType string `json:"exchangeType"`
}

type exchangeAirSegment struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	FlightNumber  string `json:"flightNumber"`
	DepartureTime string `json:"departureTime"`
}

type airExchangeReq struct {
	TargetBranch               string               `json:"targetBranch"`
	TicketNumber               string               `json:"ticketNumber"`
	UniversalRecordLocatorCode string               `json:"universalRecordLocatorCode,omitempty"`
	AirExchangeModifiers       airExchangeModifiers `json:"airExchangeModifiers"`
	AirSegment                 []exchangeAirSegment `json:"airSegment,omitempty"`
}

type fareRuleKey struct {
	FareBasis   string `json:"fareBasis"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Carrier     string `json:"carrier"`
}

type airFareRulesReq struct {
	TargetBranch string      `json:"targetBranch"`
	FareRuleKey  fareRuleKey `json:"fareRuleKey"`
}

type seatMapReq struct {
	TargetBranch  string `json:"targetBranch"`
	Carrier       string `json:"carrier"`
	FlightNumber  string `json:"flightNumber"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureTime string `json:"departureTime"`
}

type airMerchandisingReq struct {
	TargetBranch               string            `json:"targetBranch"`
	UniversalRecordLocatorCode string            `json:"universalRecordLocatorCode"`
	OptionalService            []optionalService `json:"optionalService"`
}

type optionalService struct {
	ServiceCode        string `json:"serviceCode"`
	BookingTravelerRef string `json:"bookingTravelerRef"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
}

type queuePlaceReq struct {
	TargetBranch               string `json:"targetBranch"`
	Queue                      string `json:"queue"`
	UniversalRecordLocatorCode string `json:"universalRecordLocatorCode"`
}

type queueRetrieveReq struct {
	TargetBranch string `json:"targetBranch"`
	Queue        string `json:"queue"`
}

// Galileo responses. Only the fields the adapters read are modeled; Raw
// carries the full body.

type galileoFault struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type galileoEnvelope struct {
	Fault *galileoFault `json:"fault,omitempty"`
}

type galileoPricingSolution struct {
	Key           string           `json:"key"`
	TotalPrice    string           `json:"totalPrice"`
	Carrier       string           `json:"carrier"`
	AirSegmentRef []galileoSegment `json:"airSegment"`
}

type galileoSegment struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	FlightNumber  string `json:"flightNumber"`
	DepartureTime string `json:"departureTime"`
}

type galileoSearchRsp struct {
	galileoEnvelope
	AirPricingSolution []galileoPricingSolution `json:"airPricingSolution"`
}

type galileoUniversalRecord struct {
	LocatorCode string           `json:"locatorCode"`
	Status      string           `json:"status"`
	TotalPrice  string           `json:"totalPrice"`
	ETR         []galileoETR     `json:"etr"`
	AirSegment  []galileoSegment `json:"airSegment"`
}

type galileoETR struct {
	TicketNumber string           `json:"ticketNumber"`
	TotalPrice   string           `json:"totalPrice"`
	Coupon       []galileoSegment `json:"coupon"`
}

type galileoBookRsp struct {
	galileoEnvelope
	UniversalRecord *galileoUniversalRecord `json:"universalRecord"`
}

type galileoTicketRsp struct {
	galileoEnvelope
	ETR *galileoETR `json:"etr"`
}

type galileoVoidRsp struct {
	galileoEnvelope
	VoidResultSuccess bool `json:"voidResultSuccess"`
}

type galileoRefundRsp struct {
	galileoEnvelope
	RefundAmount *refundAmount `json:"refundAmount"`
}

type galileoExchangeRsp struct {
	galileoEnvelope
	ETR            *galileoETR   `json:"etr"`
	FareDifference *refundAmount `json:"fareDifference"`
	Penalty        *refundAmount `json:"penalty"`
}

type galileoFareRulesRsp struct {
	galileoEnvelope
	Refundable     bool          `json:"refundable"`
	RefundPenalty  *refundAmount `json:"refundPenalty"`
	ChangePenalty  *refundAmount `json:"changePenalty"`
	RefundDeadline string        `json:"refundDeadline"`
	RuleText       []string      `json:"ruleText"`
}

type galileoSeatMapRsp struct {
	galileoEnvelope
	Rows []struct {
		Row   int `json:"row"`
		Seats []struct {
			Column    string `json:"column"`
			Available bool   `json:"available"`
			Price     string `json:"price"`
		} `json:"seats"`
	} `json:"rows"`
}

type galileoQueueRsp struct {
	galileoEnvelope
	LocatorCode []string `json:"locatorCode"`
}
