package models

// ProviderAnalytics summarises a provider's slot inventory. The "previous"
// bucket counts slots that are in the past or already booked, so a booked
// future slot is treated as no longer available rather than strictly
// historical.
type ProviderAnalytics struct {
	AvailableCount        int      `json:"available_count"`
	PreviousCount         int      `json:"previous_count"`
	AvailableAppointments []string `json:"available_appointments"`
	PreviousAppointments  []string `json:"previous_appointments"`
}
