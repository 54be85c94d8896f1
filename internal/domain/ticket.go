package domain

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusIssued        TicketStatus = "ISSUED"
	TicketStatusVoided        TicketStatus = "VOIDED"
	TicketStatusRefunded      TicketStatus = "REFUNDED"
	TicketStatusExchanged     TicketStatus = "EXCHANGED"
	TicketStatusSettled       TicketStatus = "SETTLED"
	TicketStatusIndeterminate TicketStatus = "INDETERMINATE"
)

// IsTerminal reports whether no further transition is allowed from s.
// EXCHANGED is terminal for the superseded ticket; the replacement starts
// its own lifecycle in ISSUED.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusVoided, TicketStatusRefunded, TicketStatusExchanged, TicketStatusSettled:
		return true
	}
	return false
}

// Ticket is one issued travel document. ReissuedFrom links a replacement
// ticket back to the ticket it superseded, forming a chain that is never
// cyclic: each ticket points to at most one predecessor and the predecessor
// is frozen in EXCHANGED.
type Ticket struct {
	ID               uuid.UUID
	BookingID        uuid.UUID
	PassengerID      uuid.UUID
	PNR              string
	TicketNumber     string
	Status           TicketStatus
	TotalAmountMinor int64
	Currency         string
	ReissuedFrom     *uuid.UUID
	IssuedAt         time.Time
}

type CouponStatus string

const (
	CouponStatusOpen     CouponStatus = "open"
	CouponStatusFlown    CouponStatus = "flown"
	CouponStatusVoid     CouponStatus = "void"
	CouponStatusRefunded CouponStatus = "refunded"
)

// TicketCoupon tracks one flight segment of a ticket.
type TicketCoupon struct {
	ID            uuid.UUID
	TicketID      uuid.UUID
	SegmentNumber int
	Origin        string
	Destination   string
	FlightNumber  string
	DepartureTime time.Time
	Status        CouponStatus
}

// HasFlownCoupon reports whether any coupon in the set has been used.
func HasFlownCoupon(coupons []TicketCoupon) bool {
	for _, c := range coupons {
		if c.Status == CouponStatusFlown {
			return true
		}
	}
	return false
}

// LatestFlownDeparture returns the departure time of the most recently
// flown coupon, or the zero time when none has flown.
func LatestFlownDeparture(coupons []TicketCoupon) time.Time {
	var latest time.Time
	for _, c := range coupons {
		if c.Status == CouponStatusFlown && c.DepartureTime.After(latest) {
			latest = c.DepartureTime
		}
	}
	return latest
}

// OpenCoupons returns the coupons still available for exchange or refund.
func OpenCoupons(coupons []TicketCoupon) []TicketCoupon {
	open := make([]TicketCoupon, 0, len(coupons))
	for _, c := range coupons {
		if c.Status == CouponStatusOpen {
			open = append(open, c)
		}
	}
	return open
}
