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

type BookingRepository interface {
	CreateDraft(ctx context.Context, booking *domain.Booking, passengers []domain.Passenger) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error)
	Passengers(ctx context.Context, bookingID uuid.UUID) ([]domain.Passenger, error)
	// ConfirmWithPNR assigns the GDS-issued locator and moves the booking out
	// of DRAFT. The PNR is never invented locally.
	ConfirmWithPNR(ctx context.Context, id uuid.UUID, pnr string, totalMinor int64, currency string, status domain.BookingStatus) (*domain.Booking, error)
	// TransitionStatus performs an optimistic compare-and-swap on status and
	// version. Returns ErrStaleEntity when another writer got there first.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, version int64) (*domain.Booking, error)
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error
	ListIndeterminate(ctx context.Context, olderThan time.Time) ([]domain.Booking, error)
}

// ErrStaleEntity means the optimistic status/version check failed: some
// other request transitioned the entity first.
var ErrStaleEntity = errors.New("entity was modified concurrently")

const bookingColumns = `id, agent_id, itinerary_ref, vendor, pnr, status, total_amount_minor, currency, payment_status, version, created_at, confirmed_at`

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var pnr *string
	if err := row.Scan(&b.ID, &b.AgentID, &b.ItineraryRef, &b.Vendor, &pnr, &b.Status, &b.TotalAmountMinor, &b.Currency, &b.PaymentStatus, &b.Version, &b.CreatedAt, &b.ConfirmedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if pnr != nil {
		b.PNR = *pnr
	}
	return &b, nil
}

func (r *PGBookingRepository) CreateDraft(ctx context.Context, booking *domain.Booking, passengers []domain.Passenger) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	booking.Status = domain.BookingStatusDraft
	booking.PaymentStatus = domain.PaymentStatusUnpaid
	if err := tx.QueryRow(ctx, `INSERT INTO bookings (id, agent_id, itinerary_ref, vendor, status, total_amount_minor, currency, payment_status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		RETURNING version, created_at`,
		booking.ID, booking.AgentID, booking.ItineraryRef, booking.Vendor, booking.Status, booking.TotalAmountMinor, booking.Currency, booking.PaymentStatus).
		Scan(&booking.Version, &booking.CreatedAt); err != nil {
		return err
	}

	for i := range passengers {
		p := &passengers[i]
		p.BookingID = booking.ID
		if _, err := tx.Exec(ctx, `INSERT INTO passengers (id, booking_id, first_name, last_name, ptc, birthdate, document_type, document_number, document_expiry, nationality)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.BookingID, p.FirstName, p.LastName, p.PTC, p.Birthdate, p.DocumentType, p.DocumentNumber, p.DocumentExpiry, p.Nationality); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
}

func (r *PGBookingRepository) GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE pnr=$1`, pnr))
}

func (r *PGBookingRepository) Passengers(ctx context.Context, bookingID uuid.UUID) ([]domain.Passenger, error) {
	rows, err := r.db.Query(ctx, `SELECT id, booking_id, first_name, last_name, ptc, birthdate, document_type, document_number, document_expiry, nationality
		FROM passengers WHERE booking_id=$1 ORDER BY last_name, first_name`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var passengers []domain.Passenger
	for rows.Next() {
		var p domain.Passenger
		if err := rows.Scan(&p.ID, &p.BookingID, &p.FirstName, &p.LastName, &p.PTC, &p.Birthdate, &p.DocumentType, &p.DocumentNumber, &p.DocumentExpiry, &p.Nationality); err != nil {
			return nil, err
		}
		passengers = append(passengers, p)
	}
	return passengers, rows.Err()
}

func (r *PGBookingRepository) ConfirmWithPNR(ctx context.Context, id uuid.UUID, pnr string, totalMinor int64, currency string, status domain.BookingStatus) (*domain.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `UPDATE bookings
		SET pnr=$1, total_amount_minor=$2, currency=$3, status=$4, version=version+1, confirmed_at=now()
		WHERE id=$5 AND status=$6
		RETURNING `+bookingColumns,
		pnr, totalMinor, currency, status, id, domain.BookingStatusDraft))
}

func (r *PGBookingRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus, version int64) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings
		SET status=$1, version=version+1
		WHERE id=$2 AND status=$3 AND version=$4
		RETURNING `+bookingColumns,
		to, id, from, version))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrStaleEntity
	}
	return b, err
}

func (r *PGBookingRepository) SetPaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	cmd, err := r.db.Exec(ctx, `UPDATE bookings SET payment_status=$1, version=version+1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PGBookingRepository) ListIndeterminate(ctx context.Context, olderThan time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status=$1 AND created_at <= $2`, domain.BookingStatusIndeterminate, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
