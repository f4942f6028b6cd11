package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/slotwise/slotwise-api/internal/models"
)

// ProviderRepository reads and updates provider reference data.
type ProviderRepository struct {
	db *sqlx.DB
}

// NewProviderRepository builds the repository.
func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerCols = `id, user_id, display_name, working_days, daily_start, daily_end, hourly_price, created_at, updated_at`

// FindByID loads a provider.
func (r *ProviderRepository) FindByID(ctx context.Context, id string) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.GetContext(ctx, &provider,
		`SELECT `+providerCols+` FROM providers WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &provider, nil
}

// FindByUserID resolves the provider owned by an account-service user.
func (r *ProviderRepository) FindByUserID(ctx context.Context, userID string) (*models.Provider, error) {
	var provider models.Provider
	if err := r.db.GetContext(ctx, &provider,
		`SELECT `+providerCols+` FROM providers WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &provider, nil
}

// UpdateAvailability persists a provider's declared weekly availability and
// returns the updated row.
func (r *ProviderRepository) UpdateAvailability(ctx context.Context, id string, workingDays []string, dailyStart, dailyEnd string, hourlyPrice decimal.Decimal) (*models.Provider, error) {
	const query = `UPDATE providers
SET working_days = $2, daily_start = $3, daily_end = $4, hourly_price = $5, updated_at = $6
WHERE id = $1
RETURNING ` + providerCols

	var provider models.Provider
	err := r.db.GetContext(ctx, &provider, query,
		id, pq.Array(workingDays), dailyStart, dailyEnd, hourlyPrice, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}
	return &provider, nil
}
