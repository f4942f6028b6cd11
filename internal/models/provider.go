package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Provider is an entity offering bookable time. The row is read-mostly
// reference data owned by the account service; this service mutates only the
// availability fields, which triggers slot regeneration.
type Provider struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	DisplayName string          `db:"display_name" json:"display_name"`
	WorkingDays pq.StringArray  `db:"working_days" json:"working_days" swaggertype:"array,string"`
	DailyStart  string          `db:"daily_start" json:"daily_start"`
	DailyEnd    string          `db:"daily_end" json:"daily_end"`
	HourlyPrice decimal.Decimal `db:"hourly_price" json:"hourly_price" swaggertype:"string"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Availability is the mutable slice of a provider used by the availability
// endpoints.
type Availability struct {
	WorkingDays []string `json:"working_days"`
	DailyStart  string   `json:"daily_start"`
	DailyEnd    string   `json:"daily_end"`
	HourlyPrice string   `json:"hourly_price"`
}

// AvailabilityOf projects the provider row into its availability view.
func AvailabilityOf(p *Provider) Availability {
	return Availability{
		WorkingDays: append([]string(nil), p.WorkingDays...),
		DailyStart:  p.DailyStart,
		DailyEnd:    p.DailyEnd,
		HourlyPrice: p.HourlyPrice.StringFixed(2),
	}
}
