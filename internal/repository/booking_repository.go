package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/slotwise/slotwise-api/internal/models"
)

// ErrSlotTaken reports a reservation that lost the race for a slot: the
// conditional flip of is_booked matched no row even though the slot exists.
var ErrSlotTaken = errors.New("slot already booked")

// BookingRepository manages bookings and owns the reservation transaction.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository builds the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingCols = `id, consumer_id, slot_id, is_paid, payment_reference, created_at, updated_at`

// Reserve atomically claims a slot for a consumer. The is_booked flip and the
// booking insert share one transaction: a conditional UPDATE checked through
// RowsAffected is the sole reservation primitive, so concurrent calls for the
// same slot produce exactly one booking. Returns sql.ErrNoRows for an unknown
// slot and ErrSlotTaken for a lost race.
func (r *BookingRepository) Reserve(ctx context.Context, slotID, consumerID string, paymentRef *string) (*models.Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET is_booked = true WHERE id = $1 AND is_booked = false`, slotID)
	if err != nil {
		return nil, fmt.Errorf("flip slot booked: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("flip slot booked: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, slotID); err != nil {
			return nil, fmt.Errorf("check slot exists: %w", err)
		}
		if !exists {
			return nil, sql.ErrNoRows
		}
		return nil, ErrSlotTaken
	}

	now := time.Now().UTC()
	booking := &models.Booking{
		ID:               uuid.NewString(),
		ConsumerID:       consumerID,
		SlotID:           slotID,
		IsPaid:           false,
		PaymentReference: paymentRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (`+bookingCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		booking.ID, booking.ConsumerID, booking.SlotID, booking.IsPaid,
		booking.PaymentReference, booking.CreatedAt, booking.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return booking, nil
}

// FindByID loads a booking.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking,
		`SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindBySlot loads the booking claiming a slot, if any.
func (r *BookingRepository) FindBySlot(ctx context.Context, slotID string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking,
		`SELECT `+bookingCols+` FROM bookings WHERE slot_id = $1`, slotID); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindByPaymentReference correlates a gateway callback with its booking.
func (r *BookingRepository) FindByPaymentReference(ctx context.Context, ref string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking,
		`SELECT `+bookingCols+` FROM bookings WHERE payment_reference = $1`, ref); err != nil {
		return nil, err
	}
	return &booking, nil
}

// AttachPaymentReference records a (re-)initiated checkout session on an
// unpaid booking.
func (r *BookingRepository) AttachPaymentReference(ctx context.Context, bookingID, ref string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_reference = $2, updated_at = $3 WHERE id = $1 AND is_paid = false`,
		bookingID, ref, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("attach payment reference: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkPaid settles a booking after a successful payment. Repeated callbacks
// for an already-paid booking are a no-op.
func (r *BookingRepository) MarkPaid(ctx context.Context, bookingID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET is_paid = true, updated_at = $2 WHERE id = $1 AND is_paid = false`,
		bookingID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark booking paid: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, bookingID); err != nil {
			return fmt.Errorf("check booking exists: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
	}
	return nil
}

// Release unwinds an unpaid hold: the booking row is deleted and its slot is
// reopened, in one transaction. Paid bookings are never released; attempting
// to returns sql.ErrNoRows.
func (r *BookingRepository) Release(ctx context.Context, bookingID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var slotID string
	err = tx.GetContext(ctx, &slotID,
		`DELETE FROM bookings WHERE id = $1 AND is_paid = false RETURNING slot_id`, bookingID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET is_booked = false WHERE id = $1`, slotID); err != nil {
		return fmt.Errorf("reopen slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// ReleaseExpired releases checkout holds that stayed unpaid past the cutoff.
// Only bookings that carry a payment reference are swept; plain reservations
// keep their optimistic hold. Returns the number of released holds.
func (r *BookingRepository) ReleaseExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expire sweep: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var slotIDs []string
	if err := tx.SelectContext(ctx, &slotIDs,
		`DELETE FROM bookings
WHERE is_paid = false AND payment_reference IS NOT NULL AND updated_at < $1
RETURNING slot_id`, cutoff); err != nil {
		return 0, fmt.Errorf("delete expired holds: %w", err)
	}
	if len(slotIDs) == 0 {
		return 0, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE slots SET is_booked = false WHERE id = ANY($1)`, pq.Array(slotIDs)); err != nil {
		return 0, fmt.Errorf("reopen expired slots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expire sweep: %w", err)
	}
	return len(slotIDs), nil
}

// ListByConsumer returns the consumer's bookings, newest first.
func (r *BookingRepository) ListByConsumer(ctx context.Context, consumerID string) ([]models.BookingDetail, error) {
	const query = `SELECT b.id, b.consumer_id, b.slot_id, b.is_paid, b.payment_reference, b.created_at, b.updated_at,
p.display_name AS provider_name, s.date, s.start_time, s.end_time
FROM bookings b
JOIN slots s ON s.id = b.slot_id
JOIN providers p ON p.id = s.provider_id
WHERE b.consumer_id = $1
ORDER BY b.created_at DESC`
	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, consumerID); err != nil {
		return nil, fmt.Errorf("list consumer bookings: %w", err)
	}
	return bookings, nil
}
