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

// AuditRepository records attempts and non-financial outcomes. Financial
// audit rows go through LedgerRepository so they share the commit
// transaction.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.AuditLogEntry, error)
	EntriesByDateRange(ctx context.Context, from, to time.Time) ([]domain.AuditLogEntry, error)
}

type PGAuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) AuditRepository {
	return &PGAuditRepository{db: db}
}

func (r *PGAuditRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO audit_log (id, actor, action_type, booking_id, ticket_id, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), entry.Actor, entry.Action, entry.BookingID, entry.TicketID, entry.Description, metadata)
	return err
}

const auditColumns = `id, actor, action_type, booking_id, ticket_id, description, metadata, created_at`

func (r *PGAuditRepository) EntriesByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.AuditLogEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func (r *PGAuditRepository) EntriesByDateRange(ctx context.Context, from, to time.Time) ([]domain.AuditLogEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+auditColumns+` FROM audit_log WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditLogEntry, error) {
	var entries []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.BookingID, &e.TicketID, &e.Description, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ AuditRepository = (*PGAuditRepository)(nil)
