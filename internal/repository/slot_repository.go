package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/slotwise/slotwise-api/internal/models"
)

// SlotRepository manages materialized slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository builds the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// InsertGeneration persists freshly generated slots inside a single
// transaction. Candidates colliding with an existing (provider, date,
// start_time) row are skipped, never updated, so already-booked slots survive
// regeneration and racing generation triggers cannot duplicate a slot.
// Returns the number of rows actually inserted.
func (r *SlotRepository) InsertGeneration(ctx context.Context, slots []models.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin slot generation: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `
INSERT INTO slots (id, provider_id, date, start_time, end_time, is_booked, created_at)
VALUES (:id, :provider_id, :date, :start_time, :end_time, false, :created_at)
ON CONFLICT (provider_id, date, start_time) DO NOTHING`

	now := time.Now().UTC()
	inserted := 0
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		res, err := tx.NamedExecContext(ctx, query, slot)
		if err != nil {
			return 0, fmt.Errorf("insert slot: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit slot generation: %w", err)
	}
	return inserted, nil
}

// FindByID loads a slot.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.Slot, error) {
	const query = `SELECT id, provider_id, date, start_time, end_time, is_booked, created_at
FROM slots WHERE id = $1`
	var slot models.Slot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// ListOpen returns unbooked slots from the given date onward, ordered by
// date then start time, together with the total match count.
func (r *SlotRepository) ListOpen(ctx context.Context, filter models.SlotFilter) ([]models.SlotDetail, int, error) {
	where := "WHERE s.is_booked = false"
	args := []interface{}{}
	if filter.ProviderID != "" {
		args = append(args, filter.ProviderID)
		where += fmt.Sprintf(" AND s.provider_id = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(" AND s.date >= $%d", len(args))
	}

	countQuery := "SELECT COUNT(*) FROM slots s " + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count open slots: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := `SELECT s.id, s.provider_id, s.date, s.start_time, s.end_time, s.is_booked, s.created_at,
p.display_name AS provider_name, p.hourly_price::text AS hourly_price
FROM slots s
JOIN providers p ON p.id = s.provider_id
` + where + " ORDER BY s.date ASC, s.start_time ASC"
	args = append(args, size, (page-1)*size)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var slots []models.SlotDetail
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list open slots: %w", err)
	}
	return slots, total, nil
}
