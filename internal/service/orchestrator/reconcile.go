package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skyfare/ticketing/internal/domain"
	"github.com/skyfare/ticketing/internal/gds"
	"github.com/skyfare/ticketing/internal/repository"
	"go.uber.org/zap"
)

// Reconcile resolves entities parked in INDETERMINATE by asking the vendor
// what actually happened. The vendor record is the ground truth: when the
// pending operation turns out to have succeeded the local commit is
// completed; when no trace of it exists the entity is reverted so the
// operation can be attempted again. Entities younger than grace are left
// alone to avoid racing an in-progress request.
func (o *Orchestrator) Reconcile(ctx context.Context, grace time.Duration) error {
	cutoff := time.Now().Add(-grace)

	bookings, err := o.bookings.ListIndeterminate(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list indeterminate bookings: %w", err)
	}
	for _, b := range bookings {
		if err := o.reconcileBooking(ctx, b); err != nil {
			o.log.Error("booking reconciliation failed",
				zap.String("booking_id", b.ID.String()), zap.Error(err))
		}
	}

	tickets, err := o.tickets.ListIndeterminate(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list indeterminate tickets: %w", err)
	}
	for _, t := range tickets {
		if err := o.reconcileTicket(ctx, t); err != nil {
			o.log.Error("ticket reconciliation failed",
				zap.String("ticket_id", t.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) reconcileBooking(ctx context.Context, booking domain.Booking) error {
	pending, err := o.cache.InFlightOperation(ctx, booking.ID.String())
	if err != nil {
		return err
	}

	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		return err
	}
	res, err := o.callRead(ctx, func() (*gds.OperationResult, error) {
		return adapter.RetrieveBooking(ctx, booking.PNR)
	})
	if err != nil {
		return err
	}
	if !res.Success {
		if res.ErrorKind == gds.ErrorKindBusiness {
			// The vendor has no record. For a pending cancel that is the
			// success case; for anything else the call never landed.
			if pending == "cancel_booking" {
				return o.completeCancel(ctx, booking)
			}
			return o.revertBooking(ctx, booking, pending)
		}
		return fmt.Errorf("vendor lookup failed: %s", res.Message)
	}

	data, ok := res.Data.(gds.BookingData)
	if !ok {
		return fmt.Errorf("unexpected retrieve payload from %s", res.Vendor)
	}

	// Whether the marker survived or not, the vendor state decides:
	// ticket numbers on the record mean the pending issue landed.
	if len(data.TicketNumbers) > 0 {
		return o.completeIssue(ctx, booking, data)
	}
	if data.Status == "CANCELLED" {
		return o.completeCancel(ctx, booking)
	}
	return o.revertBooking(ctx, booking, pending)
}

func (o *Orchestrator) completeIssue(ctx context.Context, booking domain.Booking, data gds.BookingData) error {
	amount := booking.TotalAmountMinor
	if data.TotalAmountMinor > 0 {
		amount = data.TotalAmountMinor
	}
	ticket := domain.Ticket{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		PNR:              booking.PNR,
		TicketNumber:     data.TicketNumbers[0],
		Status:           domain.TicketStatusIssued,
		TotalAmountMinor: amount,
		Currency:         booking.Currency,
		IssuedAt:         time.Now(),
	}
	_, err := o.ledger.CommitIssue(ctx, repository.IssueCommit{
		BookingID:   booking.ID,
		FromStatus:  domain.BookingStatusIndeterminate,
		Version:     booking.Version,
		AgentID:     booking.AgentID,
		Ticket:      ticket,
		Coupons:     couponsFromSegments(ticket.ID, data.Segments),
		AmountMinor: amount,
		Currency:    booking.Currency,
		Description: fmt.Sprintf("ticket %s confirmed by reconciliation for booking %s", ticket.TicketNumber, booking.ID),
		Actor:       "reconciler",
		Metadata: map[string]any{
			"booking_id":   booking.ID.String(),
			"amount_minor": amount,
			"resolved_as":  "succeeded",
		},
	})
	if err != nil {
		return err
	}
	o.releaseMarker(ctx, booking.ID.String())
	o.logState(ctx, "reconciler", "indeterminate booking resolved as issued", &booking.ID, &ticket.ID, map[string]any{
		"ticket_number": ticket.TicketNumber,
	})
	o.publishEvent(ctx, "ticket_issued", &booking, &ticket, amount)
	return nil
}

func (o *Orchestrator) completeCancel(ctx context.Context, booking domain.Booking) error {
	if _, err := o.bookings.TransitionStatus(ctx, booking.ID, domain.BookingStatusIndeterminate, domain.BookingStatusCancelled, booking.Version); err != nil {
		return err
	}
	o.releaseMarker(ctx, booking.ID.String())
	o.logState(ctx, "reconciler", "indeterminate booking resolved as cancelled", &booking.ID, nil, nil)
	booking.Status = domain.BookingStatusCancelled
	o.publishEvent(ctx, "booking_cancelled", &booking, nil, 0)
	return nil
}

func (o *Orchestrator) revertBooking(ctx context.Context, booking domain.Booking, pending string) error {
	// CONFIRMED is the revert target even for a booking parked out of
	// PENDING_PAYMENT: payment progress lives in payment_status, which the
	// park never touched, so nothing financial is lost by the regression.
	target := domain.BookingStatusConfirmed
	if booking.PNR == "" {
		target = domain.BookingStatusDraft
	}
	if _, err := o.bookings.TransitionStatus(ctx, booking.ID, domain.BookingStatusIndeterminate, target, booking.Version); err != nil {
		return err
	}
	o.releaseMarker(ctx, booking.ID.String())
	o.logState(ctx, "reconciler", "indeterminate booking resolved as not processed", &booking.ID, nil, map[string]any{
		"pending_operation": pending,
		"reverted_to":       string(target),
	})
	return nil
}

func (o *Orchestrator) reconcileTicket(ctx context.Context, ticket domain.Ticket) error {
	pending, err := o.cache.InFlightOperation(ctx, ticket.ID.String())
	if err != nil {
		return err
	}

	booking, err := o.bookings.GetByID(ctx, ticket.BookingID)
	if err != nil {
		return err
	}
	adapter, err := o.registry.Resolve(booking.Vendor)
	if err != nil {
		return err
	}
	res, err := o.callRead(ctx, func() (*gds.OperationResult, error) {
		return adapter.RetrieveBooking(ctx, ticket.PNR)
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("vendor lookup failed: %s", res.Message)
	}
	data, ok := res.Data.(gds.BookingData)
	if !ok {
		return fmt.Errorf("unexpected retrieve payload from %s", res.Vendor)
	}

	// The ticket number disappearing from the vendor record means the
	// pending void/refund landed; still present means it never did.
	stillActive := false
	for _, num := range data.TicketNumbers {
		if num == ticket.TicketNumber {
			stillActive = true
			break
		}
	}

	if stillActive {
		if _, err := o.tickets.TransitionStatus(ctx, ticket.ID, domain.TicketStatusIndeterminate, domain.TicketStatusIssued); err != nil {
			return err
		}
		o.releaseMarker(ctx, ticket.ID.String())
		o.logState(ctx, "reconciler", "indeterminate ticket resolved as not processed", &ticket.BookingID, &ticket.ID, map[string]any{
			"pending_operation": pending,
		})
		return nil
	}

	if pending == "reissue_ticket" {
		return o.completeReissue(ctx, booking, ticket, data)
	}

	switch pending {
	case "refund_ticket":
		_, err = o.ledger.CommitRefund(ctx, repository.RefundCommit{
			Ticket:      asParked(ticket),
			BookingID:   ticket.BookingID,
			AgentID:     booking.AgentID,
			AmountMinor: -ticket.TotalAmountMinor,
			Currency:    ticket.Currency,
			Description: fmt.Sprintf("ticket %s refund confirmed by reconciliation", ticket.TicketNumber),
			Actor:       "reconciler",
			Metadata:    map[string]any{"resolved_as": "succeeded"},
		})
	default:
		// void_ticket, or no marker survived. An absent document with no
		// record of a refund reads as voided.
		_, err = o.ledger.CommitVoid(ctx, repository.VoidCommit{
			Ticket:      asParked(ticket),
			BookingID:   ticket.BookingID,
			AgentID:     booking.AgentID,
			AmountMinor: -ticket.TotalAmountMinor,
			Currency:    ticket.Currency,
			Description: fmt.Sprintf("ticket %s void confirmed by reconciliation", ticket.TicketNumber),
			Actor:       "reconciler",
			Metadata:    map[string]any{"resolved_as": "succeeded"},
		})
	}
	if err != nil {
		return err
	}
	o.releaseMarker(ctx, ticket.ID.String())
	o.logState(ctx, "reconciler", "indeterminate ticket resolved as processed", &ticket.BookingID, &ticket.ID, map[string]any{
		"pending_operation": pending,
	})
	return nil
}

// completeReissue finishes an exchange whose outcome was lost. The vendor
// record names the replacement document and the repriced total; the exchange
// penalty is not on the record, so the ledger entry carries the fare
// difference the record supports.
func (o *Orchestrator) completeReissue(ctx context.Context, booking *domain.Booking, ticket domain.Ticket, data gds.BookingData) error {
	siblings, err := o.tickets.ListByBooking(ctx, ticket.BookingID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(siblings))
	for _, s := range siblings {
		known[s.TicketNumber] = true
	}
	replacement := ""
	for _, num := range data.TicketNumbers {
		if !known[num] {
			replacement = num
			break
		}
	}
	if replacement == "" {
		// Every document on the record is already known locally, so the
		// exchange outcome cannot be derived. Leave the ticket parked for
		// manual review rather than guess at a financial commit.
		o.logState(ctx, "reconciler", "exchange outcome unresolved", &ticket.BookingID, &ticket.ID, map[string]any{
			"ticket_number": ticket.TicketNumber,
		})
		return nil
	}

	newTotal := ticket.TotalAmountMinor
	if data.TotalAmountMinor > 0 {
		newTotal = data.TotalAmountMinor
	}
	oldID := ticket.ID
	newTicket := domain.Ticket{
		ID:               uuid.New(),
		BookingID:        ticket.BookingID,
		PassengerID:      ticket.PassengerID,
		PNR:              ticket.PNR,
		TicketNumber:     replacement,
		Status:           domain.TicketStatusIssued,
		TotalAmountMinor: newTotal,
		Currency:         ticket.Currency,
		ReissuedFrom:     &oldID,
		IssuedAt:         time.Now(),
	}
	entry, err := o.ledger.CommitReissue(ctx, repository.ReissueCommit{
		OldTicket:   asParked(ticket),
		NewTicket:   newTicket,
		NewCoupons:  couponsFromSegments(newTicket.ID, data.Segments),
		BookingID:   ticket.BookingID,
		AgentID:     booking.AgentID,
		AmountMinor: newTotal - ticket.TotalAmountMinor,
		Currency:    ticket.Currency,
		Description: fmt.Sprintf("ticket %s exchange for %s confirmed by reconciliation", ticket.TicketNumber, replacement),
		Actor:       "reconciler",
		Metadata: map[string]any{
			"resolved_as":           "succeeded",
			"fare_difference_minor": newTotal - ticket.TotalAmountMinor,
		},
	})
	if err != nil {
		return err
	}
	o.releaseMarker(ctx, ticket.ID.String())
	o.logState(ctx, "reconciler", "indeterminate ticket resolved as exchanged", &ticket.BookingID, &newTicket.ID, map[string]any{
		"old_ticket_number": ticket.TicketNumber,
		"new_ticket_number": replacement,
	})
	o.publishEvent(ctx, "ticket_reissued", booking, &newTicket, entry.AmountMinor)
	return nil
}

// asParked rewrites the in-memory status so the reversal commit's
// compare-and-swap matches the row that was parked in INDETERMINATE.
func asParked(t domain.Ticket) domain.Ticket {
	t.Status = domain.TicketStatusIndeterminate
	return t
}
