package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	EntryDebit  EntryKind = "DEBIT"
	EntryCredit EntryKind = "CREDIT"
)

type LedgerOperation string

const (
	LedgerOpIssue   LedgerOperation = "issue"
	LedgerOpVoid    LedgerOperation = "void"
	LedgerOpRefund  LedgerOperation = "refund"
	LedgerOpReissue LedgerOperation = "reissue"
)

// LedgerEntry is one immutable balance-affecting row. Amounts are minor
// units; AmountMinor is signed (debits positive, credits negative) and
// BalanceAfter = BalanceBefore - AmountMinor holds for every row. Entries
// are written only inside the transaction that commits the triggering
// status transition.
type LedgerEntry struct {
	ID            uuid.UUID
	BookingID     uuid.UUID
	TicketID      *uuid.UUID
	AgentID       uuid.UUID
	Kind          EntryKind
	AmountMinor   int64
	BalanceBefore int64
	BalanceAfter  int64
	Currency      string
	Operation     LedgerOperation
	Description   string
	CreatedAt     time.Time
}

type AuditAction string

const (
	AuditActionAttempt   AuditAction = "attempt"
	AuditActionFinancial AuditAction = "financial"
	AuditActionState     AuditAction = "state"
	AuditActionError     AuditAction = "error"
)

// AuditLogEntry records every attempted and completed action, independent
// of financial outcome. Never updated or deleted.
type AuditLogEntry struct {
	ID          uuid.UUID
	Actor       string
	Action      AuditAction
	BookingID   *uuid.UUID
	TicketID    *uuid.UUID
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}
