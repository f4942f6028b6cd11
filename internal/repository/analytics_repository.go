package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/slotwise/slotwise-api/internal/models"
)

// AnalyticsRepository exposes read-only aggregate queries over a provider's
// slot inventory. It holds no invariants; it reads the same state the booking
// path writes.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

const slotCols = `id, provider_id, date, start_time, end_time, is_booked, created_at`

// AvailableSlots returns the open-and-upcoming bucket: a bounded sample plus
// the total count.
func (r *AnalyticsRepository) AvailableSlots(ctx context.Context, providerID string, today time.Time, limit int) ([]models.Slot, int, error) {
	const where = `WHERE provider_id = $1 AND is_booked = false AND date >= $2`

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM slots `+where, providerID, today); err != nil {
		return nil, 0, fmt.Errorf("count available slots: %w", err)
	}

	var slots []models.Slot
	if err := r.db.SelectContext(ctx, &slots,
		`SELECT `+slotCols+` FROM slots `+where+` ORDER BY date ASC, start_time ASC LIMIT $3`,
		providerID, today, limit); err != nil {
		return nil, 0, fmt.Errorf("sample available slots: %w", err)
	}
	return slots, total, nil
}

// PreviousSlots returns the "no longer available" bucket: slots in the past
// or already booked, which deliberately includes future booked slots.
func (r *AnalyticsRepository) PreviousSlots(ctx context.Context, providerID string, today time.Time, limit int) ([]models.Slot, int, error) {
	const where = `WHERE provider_id = $1 AND (date < $2 OR is_booked = true)`

	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM slots `+where, providerID, today); err != nil {
		return nil, 0, fmt.Errorf("count previous slots: %w", err)
	}

	var slots []models.Slot
	if err := r.db.SelectContext(ctx, &slots,
		`SELECT `+slotCols+` FROM slots `+where+` ORDER BY date DESC, start_time DESC LIMIT $3`,
		providerID, today, limit); err != nil {
		return nil, 0, fmt.Errorf("sample previous slots: %w", err)
	}
	return slots, total, nil
}

// UpcomingBooked lists a provider's booked future slots for schedule export.
func (r *AnalyticsRepository) UpcomingBooked(ctx context.Context, providerID string, today time.Time) ([]models.BookingDetail, error) {
	const query = `SELECT b.id, b.consumer_id, b.slot_id, b.is_paid, b.payment_reference, b.created_at, b.updated_at,
p.display_name AS provider_name, s.date, s.start_time, s.end_time
FROM bookings b
JOIN slots s ON s.id = b.slot_id
JOIN providers p ON p.id = s.provider_id
WHERE s.provider_id = $1 AND s.date >= $2
ORDER BY s.date ASC, s.start_time ASC`

	var bookings []models.BookingDetail
	if err := r.db.SelectContext(ctx, &bookings, query, providerID, today); err != nil {
		return nil, fmt.Errorf("list upcoming booked slots: %w", err)
	}
	return bookings, nil
}
