package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyfare/ticketing/internal/domain"
)

// LedgerRepository owns the single transaction that commits a state
// transition together with its ledger entry and audit row. Ledger rows are
// never written outside these commit methods, which is what keeps the
// balance_after = balance_before - amount invariant tied to exactly one
// transition.
type LedgerRepository interface {
	CommitIssue(ctx context.Context, commit IssueCommit) (*domain.LedgerEntry, error)
	CommitVoid(ctx context.Context, commit VoidCommit) (*domain.LedgerEntry, error)
	CommitRefund(ctx context.Context, commit RefundCommit) (*domain.LedgerEntry, error)
	CommitReissue(ctx context.Context, commit ReissueCommit) (*domain.LedgerEntry, error)

	EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error)
	EntriesByDateRange(ctx context.Context, from, to time.Time) ([]domain.LedgerEntry, error)
}

type IssueCommit struct {
	BookingID   uuid.UUID
	FromStatus  domain.BookingStatus
	Version     int64
	AgentID     uuid.UUID
	Ticket      domain.Ticket
	Coupons     []domain.TicketCoupon
	AmountMinor int64 // signed: positive debit
	Currency    string
	Description string
	Actor       string
	Metadata    map[string]any
}

type VoidCommit struct {
	Ticket      domain.Ticket
	BookingID   uuid.UUID
	AgentID     uuid.UUID
	AmountMinor int64 // signed: negative credit
	Currency    string
	Description string
	Actor       string
	Metadata    map[string]any
}

type RefundCommit struct {
	Ticket      domain.Ticket
	BookingID   uuid.UUID
	AgentID     uuid.UUID
	AmountMinor int64 // signed: negative credit
	Currency    string
	Description string
	Actor       string
	Metadata    map[string]any
}

type ReissueCommit struct {
	OldTicket   domain.Ticket
	NewTicket   domain.Ticket
	NewCoupons  []domain.TicketCoupon
	BookingID   uuid.UUID
	AgentID     uuid.UUID
	AmountMinor int64 // signed: fare difference plus penalty, either sign
	Currency    string
	Description string
	Actor       string
	Metadata    map[string]any
}

type PGLedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) LedgerRepository {
	return &PGLedgerRepository{db: db}
}

func (r *PGLedgerRepository) CommitIssue(ctx context.Context, commit IssueCommit) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `UPDATE bookings SET status=$1, version=version+1 WHERE id=$2 AND status=$3 AND version=$4`,
		domain.BookingStatusIssued, commit.BookingID, commit.FromStatus, commit.Version)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrStaleEntity
	}

	if err := insertTicket(ctx, tx, commit.Ticket, commit.Coupons); err != nil {
		return nil, err
	}

	entry, err := writeLedgerEntry(ctx, tx, domain.LedgerEntry{
		BookingID:   commit.BookingID,
		TicketID:    &commit.Ticket.ID,
		AgentID:     commit.AgentID,
		Kind:        domain.EntryDebit,
		AmountMinor: commit.AmountMinor,
		Currency:    commit.Currency,
		Operation:   domain.LedgerOpIssue,
		Description: commit.Description,
	})
	if err != nil {
		return nil, err
	}

	if err := writeAudit(ctx, tx, domain.AuditLogEntry{
		Actor:       commit.Actor,
		Action:      domain.AuditActionFinancial,
		BookingID:   &commit.BookingID,
		TicketID:    &commit.Ticket.ID,
		Description: commit.Description,
		Metadata:    commit.Metadata,
	}); err != nil {
		return nil, err
	}

	return entry, tx.Commit(ctx)
}

func (r *PGLedgerRepository) CommitVoid(ctx context.Context, commit VoidCommit) (*domain.LedgerEntry, error) {
	return r.commitReversal(ctx, commit.Ticket, domain.TicketStatusVoided, domain.CouponStatusVoid, domain.LedgerOpVoid, reversalCommit{
		BookingID:   commit.BookingID,
		AgentID:     commit.AgentID,
		AmountMinor: commit.AmountMinor,
		Currency:    commit.Currency,
		Description: commit.Description,
		Actor:       commit.Actor,
		Metadata:    commit.Metadata,
	})
}

func (r *PGLedgerRepository) CommitRefund(ctx context.Context, commit RefundCommit) (*domain.LedgerEntry, error) {
	return r.commitReversal(ctx, commit.Ticket, domain.TicketStatusRefunded, domain.CouponStatusRefunded, domain.LedgerOpRefund, reversalCommit{
		BookingID:   commit.BookingID,
		AgentID:     commit.AgentID,
		AmountMinor: commit.AmountMinor,
		Currency:    commit.Currency,
		Description: commit.Description,
		Actor:       commit.Actor,
		Metadata:    commit.Metadata,
	})
}

type reversalCommit struct {
	BookingID   uuid.UUID
	AgentID     uuid.UUID
	AmountMinor int64
	Currency    string
	Description string
	Actor       string
	Metadata    map[string]any
}

func (r *PGLedgerRepository) commitReversal(ctx context.Context, ticket domain.Ticket, toStatus domain.TicketStatus, couponStatus domain.CouponStatus, op domain.LedgerOperation, commit reversalCommit) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `UPDATE tickets SET status=$1 WHERE id=$2 AND status=$3`,
		toStatus, ticket.ID, ticket.Status)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrStaleEntity
	}

	if _, err := tx.Exec(ctx, `UPDATE ticket_coupons SET status=$1 WHERE ticket_id=$2 AND status=$3`,
		couponStatus, ticket.ID, domain.CouponStatusOpen); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE bookings SET status=$1, version=version+1 WHERE id=$2`,
		domain.BookingStatus(toStatus), commit.BookingID); err != nil {
		return nil, err
	}

	entry, err := writeLedgerEntry(ctx, tx, domain.LedgerEntry{
		BookingID:   commit.BookingID,
		TicketID:    &ticket.ID,
		AgentID:     commit.AgentID,
		Kind:        domain.EntryCredit,
		AmountMinor: commit.AmountMinor,
		Currency:    commit.Currency,
		Operation:   op,
		Description: commit.Description,
	})
	if err != nil {
		return nil, err
	}

	if err := writeAudit(ctx, tx, domain.AuditLogEntry{
		Actor:       commit.Actor,
		Action:      domain.AuditActionFinancial,
		BookingID:   &commit.BookingID,
		TicketID:    &ticket.ID,
		Description: commit.Description,
		Metadata:    commit.Metadata,
	}); err != nil {
		return nil, err
	}

	return entry, tx.Commit(ctx)
}

func (r *PGLedgerRepository) CommitReissue(ctx context.Context, commit ReissueCommit) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The superseded ticket is frozen in EXCHANGED and never transitions
	// again. The compare-and-swap runs against the caller's status: ISSUED
	// in the normal flow, INDETERMINATE when the reconciler finishes a
	// parked exchange.
	cmd, err := tx.Exec(ctx, `UPDATE tickets SET status=$1 WHERE id=$2 AND status=$3`,
		domain.TicketStatusExchanged, commit.OldTicket.ID, commit.OldTicket.Status)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrStaleEntity
	}

	if _, err := tx.Exec(ctx, `UPDATE ticket_coupons SET status=$1 WHERE ticket_id=$2 AND status=$3`,
		domain.CouponStatusVoid, commit.OldTicket.ID, domain.CouponStatusOpen); err != nil {
		return nil, err
	}

	if err := insertTicket(ctx, tx, commit.NewTicket, commit.NewCoupons); err != nil {
		return nil, err
	}

	kind := domain.EntryDebit
	if commit.AmountMinor < 0 {
		kind = domain.EntryCredit
	}
	entry, err := writeLedgerEntry(ctx, tx, domain.LedgerEntry{
		BookingID:   commit.BookingID,
		TicketID:    &commit.NewTicket.ID,
		AgentID:     commit.AgentID,
		Kind:        kind,
		AmountMinor: commit.AmountMinor,
		Currency:    commit.Currency,
		Operation:   domain.LedgerOpReissue,
		Description: commit.Description,
	})
	if err != nil {
		return nil, err
	}

	if err := writeAudit(ctx, tx, domain.AuditLogEntry{
		Actor:       commit.Actor,
		Action:      domain.AuditActionFinancial,
		BookingID:   &commit.BookingID,
		TicketID:    &commit.NewTicket.ID,
		Description: commit.Description,
		Metadata:    commit.Metadata,
	}); err != nil {
		return nil, err
	}

	return entry, tx.Commit(ctx)
}

func insertTicket(ctx context.Context, tx pgx.Tx, ticket domain.Ticket, coupons []domain.TicketCoupon) error {
	if _, err := tx.Exec(ctx, `INSERT INTO tickets (id, booking_id, passenger_id, pnr, ticket_number, status, total_amount_minor, currency, reissued_from, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ticket.ID, ticket.BookingID, ticket.PassengerID, ticket.PNR, ticket.TicketNumber, ticket.Status, ticket.TotalAmountMinor, ticket.Currency, ticket.ReissuedFrom, ticket.IssuedAt); err != nil {
		return err
	}
	for _, c := range coupons {
		if _, err := tx.Exec(ctx, `INSERT INTO ticket_coupons (id, ticket_id, segment_number, origin, destination, flight_number, departure_time, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.TicketID, c.SegmentNumber, c.Origin, c.Destination, c.FlightNumber, c.DepartureTime, c.Status); err != nil {
			return err
		}
	}
	return nil
}

// writeLedgerEntry locks the agent row, computes
// balance_after = balance_before - amount and moves the agent balance in
// the same statement sequence.
func writeLedgerEntry(ctx context.Context, tx pgx.Tx, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	var balanceBefore int64
	if err := tx.QueryRow(ctx, `SELECT balance_minor FROM agents WHERE id=$1 FOR UPDATE`, entry.AgentID).Scan(&balanceBefore); err != nil {
		return nil, err
	}
	entry.BalanceBefore = balanceBefore
	entry.BalanceAfter = balanceBefore - entry.AmountMinor

	if _, err := tx.Exec(ctx, `UPDATE agents SET balance_minor=$1 WHERE id=$2`, entry.BalanceAfter, entry.AgentID); err != nil {
		return nil, err
	}

	entry.ID = uuid.New()
	if err := tx.QueryRow(ctx, `INSERT INTO ledger_entries (id, booking_id, ticket_id, agent_id, kind, amount_minor, balance_before, balance_after, currency, operation, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		entry.ID, entry.BookingID, entry.TicketID, entry.AgentID, entry.Kind, entry.AmountMinor, entry.BalanceBefore, entry.BalanceAfter, entry.Currency, entry.Operation, entry.Description).
		Scan(&entry.CreatedAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

func writeAudit(ctx context.Context, tx pgx.Tx, entry domain.AuditLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO audit_log (id, actor, action_type, booking_id, ticket_id, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), entry.Actor, entry.Action, entry.BookingID, entry.TicketID, entry.Description, metadata)
	return err
}

const ledgerColumns = `id, booking_id, ticket_id, agent_id, kind, amount_minor, balance_before, balance_after, currency, operation, description, created_at`

func (r *PGLedgerRepository) EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func (r *PGLedgerRepository) EntriesByDateRange(ctx context.Context, from, to time.Time) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.TicketID, &e.AgentID, &e.Kind, &e.AmountMinor, &e.BalanceBefore, &e.BalanceAfter, &e.Currency, &e.Operation, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ LedgerRepository = (*PGLedgerRepository)(nil)
