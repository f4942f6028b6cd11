package models

import "time"

// Booking is a consumer's claim on exactly one slot. slot_id is unique at the
// schema level, which is the structural defense against double-booking.
// is_paid and payment_reference are reconciled asynchronously by the payment
// gateway callback.
type Booking struct {
	ID               string    `db:"id" json:"id"`
	ConsumerID       string    `db:"consumer_id" json:"consumer_id"`
	SlotID           string    `db:"slot_id" json:"slot_id"`
	IsPaid           bool      `db:"is_paid" json:"is_paid"`
	PaymentReference *string   `db:"payment_reference" json:"payment_reference,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// BookingDetail joins the booked slot's time and provider onto the booking
// for consumer-facing listings.
type BookingDetail struct {
	Booking
	ProviderName string    `db:"provider_name" json:"provider_name"`
	Date         time.Time `db:"date" json:"date"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
}
