package models

import (
	"fmt"
	"time"
)

// TimeOfDayLayout is the wall-clock format used for slot boundaries.
const TimeOfDayLayout = "15:04"

// DateLayout is the calendar-date format used in payloads and exports.
const DateLayout = "2006-01-02"

// Slot is one concrete bookable interval derived from a provider's recurring
// availability. (provider_id, date, start_time) is unique; is_booked flips to
// true exactly once, at reservation, and never reverts except through an
// explicit release of an unpaid hold.
type Slot struct {
	ID         string    `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	Date       time.Time `db:"date" json:"date"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	IsBooked   bool      `db:"is_booked" json:"is_booked"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Label renders the slot the way listings and analytics samples present it,
// e.g. "2026-01-05 09:00-10:00".
func (s Slot) Label() string {
	return fmt.Sprintf("%s %s-%s", s.Date.Format(DateLayout), s.StartTime, s.EndTime)
}

// SlotDetail joins the provider's name and rate onto a slot for listings.
type SlotDetail struct {
	Slot
	ProviderName string `db:"provider_name" json:"provider_name"`
	HourlyPrice  string `db:"hourly_price" json:"hourly_price"`
}

// SlotFilter captures filtering criteria for listing open slots.
type SlotFilter struct {
	ProviderID string
	From       *time.Time
	Page       int
	PageSize   int
}
