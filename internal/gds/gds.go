// Package gds abstracts the external Global Distribution Systems behind a
// capability-polymorphic adapter interface. Every vendor exposes the same
// operation set; operations a vendor does not implement report
// ErrorKindUnsupported instead of failing the process.
package gds

import (
	"context"
	"time"
)

type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindBusiness    ErrorKind = "business"
	ErrorKindTransient   ErrorKind = "transient"
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindRateLimit   ErrorKind = "rate_limit"
	ErrorKindUnsupported ErrorKind = "unsupported"
)

// OperationResult is the normalized envelope every adapter call returns.
// Expected business rejections (fare expired, document already voided) are
// encoded as ErrorKindBusiness, never as a Go error. OutcomeUnknown marks
// transient failures on mutating calls where the vendor may have processed
// the request anyway.
type OperationResult struct {
	Success        bool
	Vendor         string
	Data           any
	ErrorKind      ErrorKind
	Message        string
	OutcomeUnknown bool
	Raw            []byte
}

// Adapter is the fixed capability contract implemented by every vendor.
type Adapter interface {
	Vendor() string

	SearchFlights(ctx context.Context, params SearchParams) (*OperationResult, error)
	GetFareRules(ctx context.Context, params FareRulesParams) (*OperationResult, error)
	CreateBooking(ctx context.Context, params BookingParams) (*OperationResult, error)
	RetrieveBooking(ctx context.Context, locator string) (*OperationResult, error)
	ModifyBooking(ctx context.Context, params ModifyParams) (*OperationResult, error)
	CancelBooking(ctx context.Context, locator string) (*OperationResult, error)
	IssueTicket(ctx context.Context, params TicketParams) (*OperationResult, error)
	VoidTicket(ctx context.Context, params VoidParams) (*OperationResult, error)
	RefundTicket(ctx context.Context, params RefundParams) (*OperationResult, error)
	ReissueTicket(ctx context.Context, params ReissueParams) (*OperationResult, error)
	GetSeatMap(ctx context.Context, params SeatMapParams) (*OperationResult, error)
	AddAncillaryServices(ctx context.Context, params AncillaryParams) (*OperationResult, error)
	QueuePlace(ctx context.Context, params QueueParams) (*OperationResult, error)
	QueueRetrieve(ctx context.Context, params QueueParams) (*OperationResult, error)
}

// Normalized request parameters. Adapters marshal these into vendor wire
// shapes; callers never see vendor payloads.

type SearchLeg struct {
	Origin      string
	Destination string
	Departure   time.Time
}

type SearchPassenger struct {
	Code     string // ADT, CNN, INF
	Quantity int
}

type SearchParams struct {
	Legs       []SearchLeg
	Passengers []SearchPassenger
	CabinClass string
}

type FareRulesParams struct {
	FareBasis   string
	Origin      string
	Destination string
	Carrier     string
}

type TravelerInfo struct {
	FirstName      string
	LastName       string
	PTC            string
	Birthdate      time.Time
	DocumentType   string
	DocumentNumber string
	DocumentExpiry time.Time
	Nationality    string
}

type ContactInfo struct {
	Email string
	Phone string
}

type BookingParams struct {
	PricingSolutionKey string
	Travelers          []TravelerInfo
	Contact            ContactInfo
}

type ModifyParams struct {
	Locator string
	Remarks []string
}

type TicketParams struct {
	Locator      string
	TravelerKeys []string
	Commission   int64 // minor units
}

type VoidParams struct {
	TicketNumber string
}

type RefundType string

const (
	RefundTypeFull    RefundType = "full"
	RefundTypePartial RefundType = "partial"
)

type RefundParams struct {
	TicketNumber string
	RefundType   RefundType
	AmountMinor  int64
	Currency     string
}

type ExchangeType string

const (
	ExchangeTypeFull    ExchangeType = "full"
	ExchangeTypePartial ExchangeType = "partial"
)

type ReissueSegment struct {
	Origin       string
	Destination  string
	FlightNumber string
	Departure    time.Time
}

type ReissueParams struct {
	TicketNumber string
	Locator      string
	ExchangeType ExchangeType
	NewSegments  []ReissueSegment
}

type SeatMapParams struct {
	Carrier      string
	FlightNumber string
	Origin       string
	Destination  string
	Departure    time.Time
}

type AncillaryService struct {
	Code        string
	TravelerKey string
	AmountMinor int64
	Currency    string
}

type AncillaryParams struct {
	Locator  string
	Services []AncillaryService
}

type QueueParams struct {
	Queue   string
	Locator string
}

// Normalized response payloads carried in OperationResult.Data.

type FareOption struct {
	PricingSolutionKey string
	Carrier            string
	TotalAmountMinor   int64
	Currency           string
	Segments           []SegmentInfo
}

type SegmentInfo struct {
	Origin        string
	Destination   string
	FlightNumber  string
	DepartureTime time.Time
}

type SearchData struct {
	Options []FareOption
}

type BookingData struct {
	Locator          string
	TotalAmountMinor int64
	Currency         string
	Status           string
	TicketNumbers    []string
	Segments         []SegmentInfo
}

type TicketData struct {
	TicketNumber     string
	TotalAmountMinor int64
	Currency         string
	Coupons          []SegmentInfo
}

type FareRulesData struct {
	Refundable         bool
	RefundPenaltyMinor int64
	ChangePenaltyMinor int64
	RefundDeadline     time.Time
	Rules              []string
}

type RefundData struct {
	RefundedAmountMinor int64
	Currency            string
}

type ExchangeData struct {
	NewTicketNumber     string
	FareDifferenceMinor int64
	PenaltyMinor        int64
	Currency            string
	Coupons             []SegmentInfo
}

type SeatMapData struct {
	Rows []SeatRow
}

type SeatRow struct {
	Row   int
	Seats []Seat
}

type Seat struct {
	Column     string
	Available  bool
	PriceMinor int64
}

type QueueData struct {
	Locators []string
}

func successResult(vendor string, data any, raw []byte) *OperationResult {
	return &OperationResult{Success: true, Vendor: vendor, Data: data, Raw: raw}
}

func failureResult(vendor string, kind ErrorKind, message string, raw []byte) *OperationResult {
	return &OperationResult{Vendor: vendor, ErrorKind: kind, Message: message, Raw: raw}
}

func unsupportedResult(vendor, operation string) *OperationResult {
	return &OperationResult{Vendor: vendor, ErrorKind: ErrorKindUnsupported, Message: operation + " is not supported by " + vendor}
}
