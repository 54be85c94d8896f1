package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyfare/ticketing/internal/domain"
)

type TicketRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error)
	Coupons(ctx context.Context, ticketID uuid.UUID) ([]domain.TicketCoupon, error)
	// TransitionStatus is an optimistic compare-and-swap used to park a
	// ticket in INDETERMINATE or bring it back once reconciled. Financial
	// transitions go through LedgerRepository commits instead.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TicketStatus) (*domain.Ticket, error)
	ListIndeterminate(ctx context.Context, olderThan time.Time) ([]domain.Ticket, error)
}

const ticketColumns = `id, booking_id, passenger_id, pnr, ticket_number, status, total_amount_minor, currency, reissued_from, issued_at`

type PGTicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) TicketRepository {
	return &PGTicketRepository{db: db}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := row.Scan(&t.ID, &t.BookingID, &t.PassengerID, &t.PNR, &t.TicketNumber, &t.Status, &t.TotalAmountMinor, &t.Currency, &t.ReissuedFrom, &t.IssuedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGTicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
}

func (r *PGTicketRepository) GetByNumber(ctx context.Context, ticketNumber string) (*domain.Ticket, error) {
	return scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, ticketNumber))
}

func (r *PGTicketRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE booking_id=$1 ORDER BY issued_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (r *PGTicketRepository) Coupons(ctx context.Context, ticketID uuid.UUID) ([]domain.TicketCoupon, error) {
	rows, err := r.db.Query(ctx, `SELECT id, ticket_id, segment_number, origin, destination, flight_number, departure_time, status
		FROM ticket_coupons WHERE ticket_id=$1 ORDER BY segment_number`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []domain.TicketCoupon
	for rows.Next() {
		var c domain.TicketCoupon
		if err := rows.Scan(&c.ID, &c.TicketID, &c.SegmentNumber, &c.Origin, &c.Destination, &c.FlightNumber, &c.DepartureTime, &c.Status); err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (r *PGTicketRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TicketStatus) (*domain.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `UPDATE tickets SET status=$1 WHERE id=$2 AND status=$3 RETURNING `+ticketColumns, to, id, from))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrStaleEntity
	}
	return t, err
}

func (r *PGTicketRepository) ListIndeterminate(ctx context.Context, olderThan time.Time) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE status=$1 AND issued_at <= $2`, domain.TicketStatusIndeterminate, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

var _ TicketRepository = (*PGTicketRepository)(nil)
