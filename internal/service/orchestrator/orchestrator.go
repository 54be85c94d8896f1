// Package orchestrator drives the ticket lifecycle state machine. Ticket
// issuance is an irreversible financial act performed by a slow and
// partially unreliable external system, so every mutating operation follows
// the same discipline: validate locally, check business rules, call the GDS
// once, and commit local state, ledger and audit in a single transaction
// only after a definitive success response. Unknown outcomes park the
// entity in INDETERMINATE for the reconciliation sweep instead of being
// retried.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/cache"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/gds"
	"github.com/skyfare/ticketing/internal/kafka"
	"github.com/skyfare/ticketing/internal/repository"
	"github.com/skyfare/ticketing/internal/rules"
	"go.uber.org/zap"
)

type Cache interface {
	AcquireInFlight(ctx context.Context, entityID, operation string, ttl time.Duration) (bool, error)
	ReleaseInFlight(ctx context.Context, entityID string) error
	InFlightOperation(ctx context.Context, entityID string) (string, error)
	StoreResult(ctx context.Context, key string, result any, ttl time.Duration) error
	GetResult(ctx context.Context, key string, dest any) (bool, error)
	GetFareRules(ctx context.Context, key string, dest any) (bool, error)
	SetFareRules(ctx context.Context, key string, rules any) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type RuleEngine interface {
	Evaluate(ctx context.Context, req rules.EvalRequest) (*rules.Effect, error)
}

type Resolver interface {
	Resolve(vendor string) (gds.Adapter, error)
}

type Orchestrator struct {
	bookings repository.BookingRepository
	tickets  repository.TicketRepository
	ledger   repository.LedgerRepository
	audit    repository.AuditRepository
	agents   repository.AgentRepository
	registry Resolver
	rules    RuleEngine
	cache    Cache
	producer Producer

	eventsTopic        string
	notificationsTopic string
	voidWindow         time.Duration
	refundDeadline     time.Duration
	inFlightTTL        time.Duration
	idempotencyTTL     time.Duration
	readRetryMax       uint64

	log *zap.Logger
}

type Option func(*Orchestrator)

func WithNotificationsTopic(topic string) Option {
	return func(o *Orchestrator) { o.notificationsTopic = topic }
}

func WithVoidWindow(window time.Duration) Option {
	return func(o *Orchestrator) { o.voidWindow = window }
}

// WithRefundDeadline allows refunds of partly flown tickets while the
// latest flown segment is still within the deadline. Zero (the default)
// means any flown coupon blocks the refund.
func WithRefundDeadline(deadline time.Duration) Option {
	return func(o *Orchestrator) { o.refundDeadline = deadline }
}

func WithInFlightTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.inFlightTTL = ttl
		}
	}
}

func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.idempotencyTTL = ttl
		}
	}
}

// WithReadRetryMax bounds the total number of attempts a read-only GDS
// call may make, the first attempt included.
func WithReadRetryMax(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.readRetryMax = uint64(n)
		}
	}
}

func New(
	bookings repository.BookingRepository,
	tickets repository.TicketRepository,
	ledger repository.LedgerRepository,
	audit repository.AuditRepository,
	agents repository.AgentRepository,
	registry Resolver,
	ruleEngine RuleEngine,
	c *cache.RedisCache,
	producer *kafka.Producer,
	eventsTopic string,
	log *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		bookings:       bookings,
		tickets:        tickets,
		ledger:         ledger,
		audit:          audit,
		agents:         agents,
		registry:       registry,
		rules:          ruleEngine,
		cache:          c,
		producer:       producer,
		eventsTopic:    eventsTopic,
		voidWindow:     24 * time.Hour,
		inFlightTTL:    15 * time.Minute,
		idempotencyTTL: 24 * time.Hour,
		readRetryMax:   3,
		log:            log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type PassengerInput struct {
	FirstName      string
	LastName       string
	PTC            string
	Birthdate      time.Time
	DocumentType   string
	DocumentNumber string
	DocumentExpiry time.Time
	Nationality    string
}

type CreateBookingInput struct {
	AgentID            uuid.UUID
	Vendor             string
	ItineraryRef       string
	PricingSolutionKey string
	Passengers         []PassengerInput
	Contact            gds.ContactInfo
	IdempotencyKey     string
	Actor              string
}

type CreateBookingResult struct {
	BookingID uuid.UUID `json:"booking_id"`
	PNR       string    `json:"pnr"`
	Status    string    `json:"status"`
}

// CreateBooking reserves the itinerary with the GDS. The booking is
// persisted in DRAFT before the call; the PNR is assigned only from a
// successful vendor response and the booking moves to PENDING_PAYMENT.
func (o *Orchestrator) CreateBooking(ctx context.Context, input CreateBookingInput) (*CreateBookingResult, error) {
	key := idemKey("", "create_booking", input.IdempotencyKey)
	var cached CreateBookingResult
	if ok, err := o.cache.GetResult(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	if len(input.Passengers) == 0 {
		return nil, &domain.ValidationError{Conditions: []string{"at least one passenger is required"}}
	}

	agent, err := o.agents.GetByID(ctx, input.AgentID)
	if err != nil {
		return nil, err
	}
	if !agent.Active {
		return nil, &domain.PermissionError{Reason: "agent account is inactive"}
	}

	if _, err := o.rules.Evaluate(ctx, rules.EvalRequest{
		Agent:     *agent,
		Vendor:    input.Vendor,
		Route:     input.ItineraryRef,
		Operation: "create_booking",
	}); err != nil {
		return nil, err
	}

	adapter, err := o.registry.Resolve(input.Vendor)
	if err != nil {
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}

	booking := &domain.Booking{
		ID:           uuid.New(),
		AgentID:      input.AgentID,
		ItineraryRef: input.ItineraryRef,
		Vendor:       input.Vendor,
	}
	passengers := make([]domain.Passenger, 0, len(input.Passengers))
	travelers := make([]gds.TravelerInfo, 0, len(input.Passengers))
	for _, p := range input.Passengers {
		passengers = append(passengers, domain.Passenger{
			ID:             uuid.New(),
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			PTC:            p.PTC,
			Birthdate:      p.Birthdate,
			DocumentType:   p.DocumentType,
			DocumentNumber: p.DocumentNumber,
			DocumentExpiry: p.DocumentExpiry,
			Nationality:    p.Nationality,
		})
		travelers = append(travelers, gds.TravelerInfo{
			FirstName:      p.FirstName,
			LastName:       p.LastName,
			PTC:            p.PTC,
			Birthdate:      p.Birthdate,
			DocumentType:   p.DocumentType,
			DocumentNumber: p.DocumentNumber,
			DocumentExpiry: p.DocumentExpiry,
			Nationality:    p.Nationality,
		})
	}
	if err := o.bookings.CreateDraft(ctx, booking, passengers); err != nil {
		return nil, err
	}

	o.logAttempt(ctx, input.Actor, "create_booking", &booking.ID, nil, map[string]any{
		"vendor":    input.Vendor,
		"itinerary": input.ItineraryRef,
	})

	res, err := adapter.CreateBooking(ctx, gds.BookingParams{
		PricingSolutionKey: input.PricingSolutionKey,
		Travelers:          travelers,
		Contact:            input.Contact,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		if res.OutcomeUnknown {
			if _, terr := o.bookings.TransitionStatus(ctx, booking.ID, domain.BookingStatusDraft, domain.BookingStatusIndeterminate, booking.Version); terr != nil {
				o.log.Error("failed to park booking", zap.String("booking_id", booking.ID.String()), zap.Error(terr))
			}
			o.logError(ctx, input.Actor, "create_booking outcome unknown", &booking.ID, nil, res.Message)
			return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "create_booking"}
		}
		// Booking stays DRAFT; only the attempt was logged.
		return nil, errorFromResult(res)
	}

	data, ok := res.Data.(gds.BookingData)
	if !ok {
		return nil, fmt.Errorf("unexpected create_booking payload from %s", res.Vendor)
	}

	updated, err := o.bookings.ConfirmWithPNR(ctx, booking.ID, data.Locator, data.TotalAmountMinor, data.Currency, domain.BookingStatusPendingPayment)
	if err != nil {
		return nil, err
	}

	o.logState(ctx, input.Actor, "booking confirmed by vendor", &booking.ID, nil, map[string]any{
		"pnr":    data.Locator,
		"status": string(updated.Status),
	})
	o.publishEvent(ctx, "booking_created", updated, nil, updated.TotalAmountMinor)

	result := &CreateBookingResult{BookingID: updated.ID, PNR: updated.PNR, Status: string(updated.Status)}
	if err := o.cache.StoreResult(ctx, key, result, o.idempotencyTTL); err != nil {
		o.log.Warn("failed to store idempotency result", zap.Error(err))
	}
	return result, nil
}

// RecordPayment marks the booking's payment captured. Issuance requires it.
func (o *Orchestrator) RecordPayment(ctx context.Context, bookingID uuid.UUID, actor string) error {
	booking, err := o.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != domain.BookingStatusPendingPayment && booking.Status != domain.BookingStatusConfirmed {
		return &domain.ValidationError{Conditions: []string{fmt.Sprintf("booking in status %s cannot accept payment", booking.Status)}}
	}
	if err := o.bookings.SetPaymentStatus(ctx, bookingID, domain.PaymentStatusCaptured); err != nil {
		return err
	}
	o.logState(ctx, actor, "payment captured", &bookingID, nil, nil)
	return nil
}

type CancelBookingInput struct {
	BookingID      uuid.UUID
	Reason         string
	IdempotencyKey string
	Actor          string
}

type CancelBookingResult struct {
	Status string `json:"status"`
}

// CancelBooking releases an unticketed reservation. Issued documents must
// be voided or refunded first; cancellation never moves money.
func (o *Orchestrator) CancelBooking(ctx context.Context, input CancelBookingInput) (*CancelBookingResult, error) {
	key := idemKey(input.BookingID.String(), "cancel_booking", input.IdempotencyKey)
	var cached CancelBookingResult
	if ok, err := o.cache.GetResult(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	booking, err := o.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == domain.BookingStatusIndeterminate {
		return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "cancel_booking"}
	}

	var conditions []string
	switch booking.Status {
	case domain.BookingStatusDraft, domain.BookingStatusPendingPayment, domain.BookingStatusConfirmed:
	default:
		conditions = append(conditions, fmt.Sprintf("booking in status %s cannot be cancelled", booking.Status))
	}
	tickets, err := o.tickets.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	for _, tk := range tickets {
		if tk.Status == domain.TicketStatusIssued {
			conditions = append(conditions, fmt.Sprintf("ticket %s must be voided or refunded first", tk.TicketNumber))
		}
	}
	if len(conditions) > 0 {
		return nil, &domain.ValidationError{Conditions: conditions}
	}

	acquired, err := o.cache.AcquireInFlight(ctx, booking.ID.String(), "cancel_booking", o.inFlightTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &domain.ConflictError{EntityID: booking.ID.String(), Operation: "cancel_booking"}
	}

	o.logAttempt(ctx, input.Actor, "cancel_booking", &booking.ID, nil, map[string]any{
		"pnr":    booking.PNR,
		"reason": input.Reason,
	})

	// A draft without a PNR never reached the vendor; cancel locally.
	if booking.PNR != "" {
		adapter, err := o.registry.Resolve(booking.Vendor)
		if err != nil {
			o.releaseMarker(ctx, booking.ID.String())
			return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
		}
		res, err := adapter.CancelBooking(ctx, booking.PNR)
		if err != nil {
			o.releaseMarker(ctx, booking.ID.String())
			return nil, err
		}
		if !res.Success {
			if res.OutcomeUnknown {
				if _, terr := o.bookings.TransitionStatus(ctx, booking.ID, booking.Status, domain.BookingStatusIndeterminate, booking.Version); terr != nil {
					o.log.Error("failed to park booking", zap.String("booking_id", booking.ID.String()), zap.Error(terr))
				}
				o.logError(ctx, input.Actor, "cancel_booking outcome unknown", &booking.ID, nil, res.Message)
				return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "cancel_booking"}
			}
			o.releaseMarker(ctx, booking.ID.String())
			o.logError(ctx, input.Actor, "cancel_booking rejected", &booking.ID, nil, res.Message)
			return nil, errorFromResult(res)
		}
	}

	updated, err := o.bookings.TransitionStatus(ctx, booking.ID, booking.Status, domain.BookingStatusCancelled, booking.Version)
	if err != nil {
		o.logError(ctx, input.Actor, "local commit failed after cancel", &booking.ID, nil, err.Error())
		return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "cancel_booking"}
	}

	o.releaseMarker(ctx, booking.ID.String())
	o.logState(ctx, input.Actor, "booking cancelled", &booking.ID, nil, map[string]any{"reason": input.Reason})
	o.publishEvent(ctx, "booking_cancelled", updated, nil, 0)

	result := &CancelBookingResult{Status: string(domain.BookingStatusCancelled)}
	if err := o.cache.StoreResult(ctx, key, result, o.idempotencyTTL); err != nil {
		o.log.Warn("failed to store idempotency result", zap.Error(err))
	}
	return result, nil
}

type IssueTicketInput struct {
	BookingID      uuid.UUID
	PassengerID    uuid.UUID
	PaymentMethod  string
	IdempotencyKey string
	Actor          string
}

type IssueTicketResult struct {
	TicketID     uuid.UUID `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	Status       string    `json:"status"`
	AmountMinor  int64     `json:"amount_minor"`
}

// IssueTicket performs the irreversible issuance. Sequence: idempotency
// replay check, in-flight marker, credit-limit check against the
// rule-adjusted total, one GDS call, then the atomic local commit. A
// timeout parks the booking in INDETERMINATE with the marker left in place
// for reconciliation; the call is never retried.
func (o *Orchestrator) IssueTicket(ctx context.Context, input IssueTicketInput) (*IssueTicketResult, error) {
	key := idemKey(input.BookingID.String(), "issue_ticket", input.IdempotencyKey)
	var cached IssueTicketResult
	if ok, err := o.cache.GetResult(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	booking, err := o.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status == domain.BookingStatusIndeterminate {
		return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "issue_ticket"}
	}
	var conditions []string
	if booking.Status != domain.BookingStatusConfirmed && booking.Status != domain.BookingStatusPendingPayment {
		conditions = append(conditions, fmt.Sprintf("booking in status %s cannot be ticketed", booking.Status))
	}
	if booking.PaymentStatus != domain.PaymentStatusCaptured {
		conditions = append(conditions, "payment has not been captured")
	}
	if len(conditions) > 0 {
		return nil, &domain.ValidationError{Conditions: conditions}
	}

	acquired, err := o.cache.AcquireInFlight(ctx, booking.ID.String(), "issue_ticket", o.inFlightTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &domain.ConflictError{EntityID: booking.ID.String(), Operation: "issue_ticket"}
	}

	agent, err := o.agents.GetByID(ctx, booking.AgentID)
	if err != nil {
		o.releaseMarker(ctx, booking.ID.String())
		return nil, err
	}

	effect, err := o.rules.Evaluate(ctx, rules.EvalRequest{
		Agent:       *agent,
		Vendor:      booking.Vendor,
		Route:       booking.ItineraryRef,
		Operation:   "issue_ticket",
		AmountMinor: booking.TotalAmountMinor,
	})
	if err != nil {
		o.releaseMarker(ctx, booking.ID.String())
		return nil, err
	}

	o.logAttempt(ctx, input.Actor, "issue_ticket", &booking.ID, nil, map[string]any{
		"pnr":          booking.PNR,
		"amount_minor": effect.AdjustedAmountMinor,
	})

	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		o.releaseMarker(ctx, booking.ID.String())
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}

	res, err := adapter.IssueTicket(ctx, gds.TicketParams{
		Locator:    booking.PNR,
		Commission: effect.CommissionMinor,
	})
	if err != nil {
		o.releaseMarker(ctx, booking.ID.String())
		return nil, err
	}
	if !res.Success {
		if res.OutcomeUnknown {
			// The vendor may have issued the document. Park the booking and
			// keep the marker so the reconciliation sweep sees it; a blind
			// retry here could double-issue.
			if _, terr := o.bookings.TransitionStatus(ctx, booking.ID, booking.Status, domain.BookingStatusIndeterminate, booking.Version); terr != nil {
				o.log.Error("failed to park booking", zap.String("booking_id", booking.ID.String()), zap.Error(terr))
			}
			o.logError(ctx, input.Actor, "issue_ticket outcome unknown", &booking.ID, nil, res.Message)
			return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "issue_ticket"}
		}
		o.releaseMarker(ctx, booking.ID.String())
		o.logError(ctx, input.Actor, "issue_ticket rejected", &booking.ID, nil, res.Message)
		return nil, errorFromResult(res)
	}

	data, ok := res.Data.(gds.TicketData)
	if !ok {
		o.releaseMarker(ctx, booking.ID.String())
		return nil, fmt.Errorf("unexpected issue_ticket payload from %s", res.Vendor)
	}

	amount := effect.AdjustedAmountMinor
	if amount == 0 {
		amount = data.TotalAmountMinor
	}
	ticket := domain.Ticket{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		PassengerID:      input.PassengerID,
		PNR:              booking.PNR,
		TicketNumber:     data.TicketNumber,
		Status:           domain.TicketStatusIssued,
		TotalAmountMinor: amount,
		Currency:         booking.Currency,
		IssuedAt:         time.Now(),
	}
	coupons := couponsFromSegments(ticket.ID, data.Coupons)

	entry, err := o.ledger.CommitIssue(ctx, repository.IssueCommit{
		BookingID:   booking.ID,
		FromStatus:  booking.Status,
		Version:     booking.Version,
		AgentID:     booking.AgentID,
		Ticket:      ticket,
		Coupons:     coupons,
		AmountMinor: amount,
		Currency:    booking.Currency,
		Description: fmt.Sprintf("ticket %s issued for booking %s", data.TicketNumber, booking.ID),
		Actor:       input.Actor,
		Metadata: map[string]any{
			"booking_id":   booking.ID.String(),
			"amount_minor": amount,
			"pnr":          booking.PNR,
		},
	})
	if err != nil {
		// The GDS issued the document but the local commit failed: this must
		// surface as indeterminate, not as success or clean failure.
		o.logError(ctx, input.Actor, "local commit failed after issuance", &booking.ID, nil, err.Error())
		return nil, &domain.IndeterminateError{EntityID: booking.ID.String(), Operation: "issue_ticket"}
	}

	o.releaseMarker(ctx, booking.ID.String())
	o.publishEvent(ctx, "ticket_issued", booking, &ticket, entry.AmountMinor)

	result := &IssueTicketResult{TicketID: ticket.ID, TicketNumber: ticket.TicketNumber, Status: string(domain.BookingStatusIssued), AmountMinor: amount}
	if err := o.cache.StoreResult(ctx, key, result, o.idempotencyTTL); err != nil {
		o.log.Warn("failed to store idempotency result", zap.Error(err))
	}
	return result, nil
}

type VoidTicketInput struct {
	TicketID       uuid.UUID
	Reason         string
	IdempotencyKey string
	Actor          string
}

type VoidTicketResult struct {
	Status string `json:"status"`
}

// VoidTicket cancels an issued document inside the void window. Every
// violated guard is reported, not just the first.
func (o *Orchestrator) VoidTicket(ctx context.Context, input VoidTicketInput) (*VoidTicketResult, error) {
	key := idemKey(input.TicketID.String(), "void_ticket", input.IdempotencyKey)
	var cached VoidTicketResult
	if ok, err := o.cache.GetResult(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	ticket, err := o.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusIndeterminate {
		return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "void_ticket"}
	}
	coupons, err := o.tickets.Coupons(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	var conditions []string
	if ticket.Status != domain.TicketStatusIssued {
		conditions = append(conditions, fmt.Sprintf("ticket in status %s cannot be voided", ticket.Status))
	}
	if domain.HasFlownCoupon(coupons) {
		conditions = append(conditions, "ticket has a flown coupon")
	}
	if time.Since(ticket.IssuedAt) > o.voidWindow {
		conditions = append(conditions, "Ticket issued more than 24 hours ago")
	}
	if len(conditions) > 0 {
		return nil, &domain.ValidationError{Conditions: conditions}
	}

	acquired, err := o.cache.AcquireInFlight(ctx, ticket.ID.String(), "void_ticket", o.inFlightTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &domain.ConflictError{EntityID: ticket.ID.String(), Operation: "void_ticket"}
	}

	o.logAttempt(ctx, input.Actor, "void_ticket", &ticket.BookingID, &ticket.ID, map[string]any{
		"ticket_number": ticket.TicketNumber,
		"reason":        input.Reason,
	})

	booking, err := o.bookings.GetByID(ctx, ticket.BookingID)
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, err
	}

	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}

	res, err := adapter.VoidTicket(ctx, gds.VoidParams{TicketNumber: ticket.TicketNumber})
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, err
	}
	if !res.Success {
		if res.OutcomeUnknown {
			if _, terr := o.tickets.TransitionStatus(ctx, ticket.ID, ticket.Status, domain.TicketStatusIndeterminate); terr != nil {
				o.log.Error("failed to park ticket", zap.String("ticket_id", ticket.ID.String()), zap.Error(terr))
			}
			o.logError(ctx, input.Actor, "void_ticket outcome unknown", &ticket.BookingID, &ticket.ID, res.Message)
			return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "void_ticket"}
		}
		o.releaseMarker(ctx, ticket.ID.String())
		o.logError(ctx, input.Actor, "void_ticket rejected", &ticket.BookingID, &ticket.ID, res.Message)
		return nil, errorFromResult(res)
	}

	entry, err := o.ledger.CommitVoid(ctx, repository.VoidCommit{
		Ticket:      *ticket,
		BookingID:   ticket.BookingID,
		AgentID:     booking.AgentID,
		AmountMinor: -ticket.TotalAmountMinor,
		Currency:    ticket.Currency,
		Description: fmt.Sprintf("ticket %s voided: %s", ticket.TicketNumber, input.Reason),
		Actor:       input.Actor,
		Metadata:    map[string]any{"reason": input.Reason},
	})
	if err != nil {
		o.logError(ctx, input.Actor, "local commit failed after void", &ticket.BookingID, &ticket.ID, err.Error())
		return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "void_ticket"}
	}

	o.releaseMarker(ctx, ticket.ID.String())
	o.publishEvent(ctx, "ticket_voided", booking, ticket, entry.AmountMinor)

	result := &VoidTicketResult{Status: string(domain.TicketStatusVoided)}
	if err := o.cache.StoreResult(ctx, key, result, o.idempotencyTTL); err != nil {
		o.log.Warn("failed to store idempotency result", zap.Error(err))
	}
	return result, nil
}

type RefundTicketInput struct {
	TicketID       uuid.UUID
	RefundType     gds.RefundType
	AmountMinor    int64 // optional for partial refunds
	IdempotencyKey string
	Actor          string
}

type RefundTicketResult struct {
	RefundAmountMinor int64  `json:"refund_amount_minor"`
	Status            string `json:"status"`
}

// RefundTicket computes the refundable amount from fare rules before
// calling the GDS. The refunded amount never exceeds the ticket total.
func (o *Orchestrator) RefundTicket(ctx context.Context, input RefundTicketInput) (*RefundTicketResult, error) {
	key := idemKey(input.TicketID.String(), "refund_ticket", input.IdempotencyKey)
	var cached RefundTicketResult
	if ok, err := o.cache.GetResult(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	ticket, err := o.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusIndeterminate {
		return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "refund_ticket"}
	}
	coupons, err := o.tickets.Coupons(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	var conditions []string
	if ticket.Status.IsTerminal() {
		conditions = append(conditions, fmt.Sprintf("ticket in status %s cannot be refunded", ticket.Status))
	}
	if domain.HasFlownCoupon(coupons) {
		flown := domain.LatestFlownDeparture(coupons)
		if o.refundDeadline <= 0 || time.Since(flown) > o.refundDeadline {
			conditions = append(conditions, "ticket has a flown coupon past the refund deadline")
		}
	}
	if len(conditions) > 0 {
		return nil, &domain.ValidationError{Conditions: conditions}
	}

	booking, err := o.bookings.GetByID(ctx, ticket.BookingID)
	if err != nil {
		return nil, err
	}
	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}

	refundable, err := o.refundableAmount(ctx, booking, ticket, coupons)
	if err != nil {
		return nil, err
	}
	amount := refundable
	if input.RefundType == gds.RefundTypePartial && input.AmountMinor > 0 && input.AmountMinor < amount {
		amount = input.AmountMinor
	}
	if amount <= 0 {
		return nil, &domain.ValidationError{Conditions: []string{"fare rules leave no refundable amount"}}
	}

	acquired, err := o.cache.AcquireInFlight(ctx, ticket.ID.String(), "refund_ticket", o.inFlightTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &domain.ConflictError{EntityID: ticket.ID.String(), Operation: "refund_ticket"}
	}

	o.logAttempt(ctx, input.Actor, "refund_ticket", &ticket.BookingID, &ticket.ID, map[string]any{
		"ticket_number": ticket.TicketNumber,
		"amount_minor":  amount,
	})

	res, err := adapter.RefundTicket(ctx, gds.RefundParams{
		TicketNumber: ticket.TicketNumber,
		RefundType:   input.RefundType,
		AmountMinor:  amount,
		Currency:     ticket.Currency,
	})
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, err
	}
	if !res.Success {
		if res.OutcomeUnknown {
			if _, terr := o.tickets.TransitionStatus(ctx, ticket.ID, ticket.Status, domain.TicketStatusIndeterminate); terr != nil {
				o.log.Error("failed to park ticket", zap.String("ticket_id", ticket.ID.String()), zap.Error(terr))
			}
			o.logError(ctx, input.Actor, "refund_ticket outcome unknown", &ticket.BookingID, &ticket.ID, res.Message)
			return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "refund_ticket"}
		}
		o.releaseMarker(ctx, ticket.ID.String())
		o.logError(ctx, input.Actor, "refund_ticket rejected", &ticket.BookingID, &ticket.ID, res.Message)
		return nil, errorFromResult(res)
	}

	if data, ok := res.Data.(gds.RefundData); ok && data.RefundedAmountMinor > 0 && data.RefundedAmountMinor < amount {
		amount = data.RefundedAmountMinor
	}
	if amount > ticket.TotalAmountMinor {
		amount = ticket.TotalAmountMinor
	}

	entry, err := o.ledger.CommitRefund(ctx, repository.RefundCommit{
		Ticket:      *ticket,
		BookingID:   ticket.BookingID,
		AgentID:     booking.AgentID,
		AmountMinor: -amount,
		Currency:    ticket.Currency,
		Description: fmt.Sprintf("ticket %s refunded", ticket.TicketNumber),
		Actor:       input.Actor,
		Metadata:    map[string]any{"refund_type": string(input.RefundType), "amount_minor": amount},
	})
	if err != nil {
		o.logError(ctx, input.Actor, "local commit failed after refund", &ticket.BookingID, &ticket.ID, err.Error())
		return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "refund_ticket"}
	}

	o.releaseMarker(ctx, ticket.ID.String())
	o.publishEvent(ctx, "ticket_refunded", booking, ticket, entry.AmountMinor)

	result := &RefundTicketResult{RefundAmountMinor: amount, Status: string(domain.TicketStatusRefunded)}
	if err := o.cache.StoreResult(ctx, key, result, o.idempotencyTTL); err != nil {
		o.log.Warn("failed to store idempotency result", zap.Error(err))
	}
	return result, nil
}

type ReissueTicketInput struct {
	TicketID       uuid.UUID
	NewSegments    []gds.ReissueSegment
	IdempotencyKey string
	Actor          string
}

type ReissueTicketResult struct {
	NewTicketID  uuid.UUID `json:"new_ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	AmountMinor  int64     `json:"amount_minor"`
}

// ReissueTicket exchanges an issued document. Exactly one new ticket is
// created with reissued_from pointing at the original; the original is
// frozen in EXCHANGED. The ledger records the net fare difference plus
// penalty, which can go either way.
func (o *Orchestrator) ReissueTicket(ctx context.Context, input ReissueTicketInput) (*ReissueTicketResult, error) {
	key := idemKey(input.TicketID.String(), "reissue_ticket", input.IdempotencyKey)
	var cached ReissueTicketResult
	if ok, err := o.cache.GetResult(ctx, key, &cached); err == nil && ok {
		return &cached, nil
	}

	ticket, err := o.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusIndeterminate {
		return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "reissue_ticket"}
	}
	coupons, err := o.tickets.Coupons(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}

	var conditions []string
	if ticket.Status != domain.TicketStatusIssued {
		conditions = append(conditions, fmt.Sprintf("ticket in status %s cannot be reissued", ticket.Status))
	}
	exchangeType := gds.ExchangeTypeFull
	if domain.HasFlownCoupon(coupons) {
		if len(domain.OpenCoupons(coupons)) == 0 {
			conditions = append(conditions, "no open coupon remains to exchange")
		}
		exchangeType = gds.ExchangeTypePartial
	}
	if len(input.NewSegments) == 0 {
		conditions = append(conditions, "replacement segments are required")
	}
	if len(conditions) > 0 {
		return nil, &domain.ValidationError{Conditions: conditions}
	}

	acquired, err := o.cache.AcquireInFlight(ctx, ticket.ID.String(), "reissue_ticket", o.inFlightTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, &domain.ConflictError{EntityID: ticket.ID.String(), Operation: "reissue_ticket"}
	}

	o.logAttempt(ctx, input.Actor, "reissue_ticket", &ticket.BookingID, &ticket.ID, map[string]any{
		"ticket_number": ticket.TicketNumber,
		"exchange_type": string(exchangeType),
	})

	booking, err := o.bookings.GetByID(ctx, ticket.BookingID)
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, err
	}
	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}

	res, err := adapter.ReissueTicket(ctx, gds.ReissueParams{
		TicketNumber: ticket.TicketNumber,
		Locator:      ticket.PNR,
		ExchangeType: exchangeType,
		NewSegments:  input.NewSegments,
	})
	if err != nil {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, err
	}
	if !res.Success {
		if res.OutcomeUnknown {
			if _, terr := o.tickets.TransitionStatus(ctx, ticket.ID, ticket.Status, domain.TicketStatusIndeterminate); terr != nil {
				o.log.Error("failed to park ticket", zap.String("ticket_id", ticket.ID.String()), zap.Error(terr))
			}
			o.logError(ctx, input.Actor, "reissue_ticket outcome unknown", &ticket.BookingID, &ticket.ID, res.Message)
			return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "reissue_ticket"}
		}
		o.releaseMarker(ctx, ticket.ID.String())
		o.logError(ctx, input.Actor, "reissue_ticket rejected", &ticket.BookingID, &ticket.ID, res.Message)
		return nil, errorFromResult(res)
	}

	data, ok := res.Data.(gds.ExchangeData)
	if !ok {
		o.releaseMarker(ctx, ticket.ID.String())
		return nil, fmt.Errorf("unexpected reissue_ticket payload from %s", res.Vendor)
	}

	netAmount := data.FareDifferenceMinor + data.PenaltyMinor
	oldID := ticket.ID
	newTicket := domain.Ticket{
		ID:               uuid.New(),
		BookingID:        ticket.BookingID,
		PassengerID:      ticket.PassengerID,
		PNR:              ticket.PNR,
		TicketNumber:     data.NewTicketNumber,
		Status:           domain.TicketStatusIssued,
		TotalAmountMinor: ticket.TotalAmountMinor + data.FareDifferenceMinor,
		Currency:         ticket.Currency,
		ReissuedFrom:     &oldID,
		IssuedAt:         time.Now(),
	}
	newCoupons := couponsFromSegments(newTicket.ID, data.Coupons)

	entry, err := o.ledger.CommitReissue(ctx, repository.ReissueCommit{
		OldTicket:   *ticket,
		NewTicket:   newTicket,
		NewCoupons:  newCoupons,
		BookingID:   ticket.BookingID,
		AgentID:     booking.AgentID,
		AmountMinor: netAmount,
		Currency:    ticket.Currency,
		Description: fmt.Sprintf("ticket %s exchanged for %s", ticket.TicketNumber, data.NewTicketNumber),
		Actor:       input.Actor,
		Metadata: map[string]any{
			"fare_difference_minor": data.FareDifferenceMinor,
			"penalty_minor":         data.PenaltyMinor,
		},
	})
	if err != nil {
		o.logError(ctx, input.Actor, "local commit failed after exchange", &ticket.BookingID, &ticket.ID, err.Error())
		return nil, &domain.IndeterminateError{EntityID: ticket.ID.String(), Operation: "reissue_ticket"}
	}

	o.releaseMarker(ctx, ticket.ID.String())
	o.publishEvent(ctx, "ticket_reissued", booking, &newTicket, entry.AmountMinor)

	result := &ReissueTicketResult{NewTicketID: newTicket.ID, TicketNumber: newTicket.TicketNumber, AmountMinor: netAmount}
	if err := o.cache.StoreResult(ctx, key, result, o.idempotencyTTL); err != nil {
		o.log.Warn("failed to store idempotency result", zap.Error(err))
	}
	return result, nil
}

// BookingSnapshot is the read-only view returned by RetrieveBooking.
type BookingSnapshot struct {
	Booking    *domain.Booking    `json:"booking"`
	Passengers []domain.Passenger `json:"passengers"`
	Tickets    []domain.Ticket    `json:"tickets"`
	Vendor     *gds.BookingData   `json:"vendor,omitempty"`
}

// RetrieveBooking is read-only: no state transition, no ledger or audit
// writes. Transient vendor failures are retried with bounded backoff.
func (o *Orchestrator) RetrieveBooking(ctx context.Context, pnr string) (*BookingSnapshot, error) {
	booking, err := o.bookings.GetByPNR(ctx, pnr)
	if err != nil {
		return nil, err
	}
	passengers, err := o.bookings.Passengers(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	tickets, err := o.tickets.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	snapshot := &BookingSnapshot{Booking: booking, Passengers: passengers, Tickets: tickets}

	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		return snapshot, nil
	}
	res, err := o.callRead(ctx, func() (*gds.OperationResult, error) {
		return adapter.RetrieveBooking(ctx, pnr)
	})
	if err == nil && res.Success {
		if data, ok := res.Data.(gds.BookingData); ok {
			snapshot.Vendor = &data
		}
	}
	return snapshot, nil
}

// GetFareRules is read-only and served from cache when possible.
func (o *Orchestrator) GetFareRules(ctx context.Context, vendor string, params gds.FareRulesParams) (*gds.FareRulesData, error) {
	cacheKey := fmt.Sprintf("%s:%s:%s:%s:%s", vendor, params.Carrier, params.Origin, params.Destination, params.FareBasis)
	var cached gds.FareRulesData
	if ok, err := o.cache.GetFareRules(ctx, cacheKey, &cached); err == nil && ok {
		return &cached, nil
	}

	adapter, err := o.registry.Resolve(vendor)
	if err != nil {
		return nil, &domain.ValidationError{Conditions: []string{err.Error()}}
	}
	res, err := o.callRead(ctx, func() (*gds.OperationResult, error) {
		return adapter.GetFareRules(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errorFromResult(res)
	}
	data, ok := res.Data.(gds.FareRulesData)
	if !ok {
		return nil, fmt.Errorf("unexpected fare rules payload from %s", res.Vendor)
	}
	if err := o.cache.SetFareRules(ctx, cacheKey, data); err != nil {
		o.log.Warn("failed to cache fare rules", zap.Error(err))
	}
	return &data, nil
}

func (o *Orchestrator) refundableAmount(ctx context.Context, booking *domain.Booking, ticket *domain.Ticket, coupons []domain.TicketCoupon) (int64, error) {
	var params gds.FareRulesParams
	if len(coupons) > 0 {
		params.Origin = coupons[0].Origin
		params.Destination = coupons[len(coupons)-1].Destination
	}
	rulesData, err := o.GetFareRules(ctx, booking.Vendor, params)
	if err != nil {
		// Without fare rules the safe refundable bound is the full total;
		// the vendor still has the final say on the refund call itself.
		var be *domain.GDSBusinessError
		if errors.As(err, &be) {
			return ticket.TotalAmountMinor, nil
		}
		return 0, err
	}
	if !rulesData.Refundable {
		return 0, nil
	}
	refundable := ticket.TotalAmountMinor - rulesData.RefundPenaltyMinor
	if refundable < 0 {
		refundable = 0
	}
	if refundable > ticket.TotalAmountMinor {
		refundable = ticket.TotalAmountMinor
	}
	return refundable, nil
}

// callRead retries a read-only GDS call on transient failures with
// exponential backoff, up to the configured budget. Mutating calls never
// come through here.
func (o *Orchestrator) callRead(ctx context.Context, fn func() (*gds.OperationResult, error)) (*gds.OperationResult, error) {
	var res *gds.OperationResult
	operation := func() error {
		r, err := fn()
		if err != nil {
			return backoff.Permanent(err)
		}
		res = r
		if !r.Success && (r.ErrorKind == gds.ErrorKindTransient || r.ErrorKind == gds.ErrorKindRateLimit) {
			return fmt.Errorf("transient gds failure: %s", r.Message)
		}
		return nil
	}

	// readRetryMax bounds total attempts; the backoff budget is one less.
	retries := o.readRetryMax
	if retries > 0 {
		retries--
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if res != nil {
			return res, nil
		}
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) releaseMarker(ctx context.Context, entityID string) {
	if err := o.cache.ReleaseInFlight(ctx, entityID); err != nil {
		o.log.Warn("failed to release in-flight marker", zap.String("entity_id", entityID), zap.Error(err))
	}
}

func (o *Orchestrator) logAttempt(ctx context.Context, actor, description string, bookingID, ticketID *uuid.UUID, metadata map[string]any) {
	o.appendAudit(ctx, domain.AuditLogEntry{
		Actor:       orDefault(actor),
		Action:      domain.AuditActionAttempt,
		BookingID:   bookingID,
		TicketID:    ticketID,
		Description: description,
		Metadata:    metadata,
	})
}

func (o *Orchestrator) logState(ctx context.Context, actor, description string, bookingID, ticketID *uuid.UUID, metadata map[string]any) {
	o.appendAudit(ctx, domain.AuditLogEntry{
		Actor:       orDefault(actor),
		Action:      domain.AuditActionState,
		BookingID:   bookingID,
		TicketID:    ticketID,
		Description: description,
		Metadata:    metadata,
	})
}

func (o *Orchestrator) logError(ctx context.Context, actor, description string, bookingID, ticketID *uuid.UUID, detail string) {
	o.appendAudit(ctx, domain.AuditLogEntry{
		Actor:       orDefault(actor),
		Action:      domain.AuditActionError,
		BookingID:   bookingID,
		TicketID:    ticketID,
		Description: description,
		Metadata:    map[string]any{"detail": detail},
	})
}

func (o *Orchestrator) appendAudit(ctx context.Context, entry domain.AuditLogEntry) {
	if err := o.audit.Append(ctx, entry); err != nil {
		o.log.Error("failed to append audit entry", zap.String("description", entry.Description), zap.Error(err))
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, eventType string, booking *domain.Booking, ticket *domain.Ticket, amountMinor int64) {
	if o.producer == nil || o.eventsTopic == "" {
		return
	}
	event := kafka.TicketEvent{
		Type:        eventType,
		BookingID:   booking.ID.String(),
		PNR:         booking.PNR,
		Vendor:      booking.Vendor,
		AmountMinor: amountMinor,
		Currency:    booking.Currency,
		Status:      string(booking.Status),
		At:          time.Now(),
	}
	if ticket != nil {
		event.TicketID = ticket.ID.String()
		event.Status = string(ticket.Status)
	}
	if err := o.producer.Publish(ctx, o.eventsTopic, event.BookingID, event); err != nil {
		o.log.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
	if o.notificationsTopic != "" {
		if err := o.producer.Publish(ctx, o.notificationsTopic, event.BookingID, event); err != nil {
			o.log.Warn("failed to publish notification", zap.String("type", eventType), zap.Error(err))
		}
	}
}

func couponsFromSegments(ticketID uuid.UUID, segments []gds.SegmentInfo) []domain.TicketCoupon {
	coupons := make([]domain.TicketCoupon, 0, len(segments))
	for i, seg := range segments {
		coupons = append(coupons, domain.TicketCoupon{
			ID:            uuid.New(),
			TicketID:      ticketID,
			SegmentNumber: i + 1,
			Origin:        seg.Origin,
			Destination:   seg.Destination,
			FlightNumber:  seg.FlightNumber,
			DepartureTime: seg.DepartureTime,
			Status:        domain.CouponStatusOpen,
		})
	}
	return coupons
}

func errorFromResult(res *gds.OperationResult) error {
	switch res.ErrorKind {
	case gds.ErrorKindBusiness:
		return &domain.GDSBusinessError{Vendor: res.Vendor, Message: res.Message}
	case gds.ErrorKindAuth:
		return &domain.GDSBusinessError{Vendor: res.Vendor, Code: "auth", Message: res.Message}
	case gds.ErrorKindUnsupported:
		return &domain.ValidationError{Conditions: []string{res.Message}}
	default:
		return &domain.GDSTransientError{Vendor: res.Vendor, Err: errors.New(res.Message)}
	}
}

func idemKey(entityID, operation, nonce string) string {
	return fmt.Sprintf("%s:%s:%s", entityID, operation, nonce)
}

func orDefault(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
