package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusDraft          BookingStatus = "DRAFT"
	BookingStatusPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingStatusConfirmed      BookingStatus = "CONFIRMED"
	BookingStatusCancelled      BookingStatus = "CANCELLED"
	BookingStatusIssued         BookingStatus = "ISSUED"
	BookingStatusVoided         BookingStatus = "VOIDED"
	BookingStatusRefunded       BookingStatus = "REFUNDED"
	BookingStatusExchanged      BookingStatus = "EXCHANGED"
	BookingStatusSettled        BookingStatus = "SETTLED"
	BookingStatusIndeterminate  BookingStatus = "INDETERMINATE"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusCaptured PaymentStatus = "CAPTURED"
)

// Booking is the aggregate root for one reservation attempt. PNR stays empty
// until the GDS confirms the reservation; it is never generated locally.
type Booking struct {
	ID               uuid.UUID
	AgentID          uuid.UUID
	ItineraryRef     string
	Vendor           string
	PNR              string
	Status           BookingStatus
	TotalAmountMinor int64
	Currency         string
	PaymentStatus    PaymentStatus
	Version          int64
	CreatedAt        time.Time
	ConfirmedAt      *time.Time
}

type Passenger struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	FirstName      string
	LastName       string
	PTC            string // ADT, CNN, INF
	Birthdate      time.Time
	DocumentType   string
	DocumentNumber string
	DocumentExpiry time.Time
	Nationality    string
}

// Agent is the credit account the rule engine checks before money moves.
type Agent struct {
	ID               uuid.UUID
	Name             string
	CreditLimitMinor int64
	BalanceMinor     int64
	Currency         string
	Active           bool
}

// IsMutable reports whether a booking can accept a new mutating operation.
// INDETERMINATE bookings must be reconciled first.
func (b *Booking) IsMutable() bool {
	switch b.Status {
	case BookingStatusVoided, BookingStatusRefunded, BookingStatusSettled, BookingStatusIndeterminate:
		return false
	}
	return true
}
