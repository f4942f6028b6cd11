package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/slotwise/slotwise-api/internal/models"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves a weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	if day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return day, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func parseTimeOfDay(value string) (time.Duration, error) {
	t, err := time.Parse(models.TimeOfDayLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", value)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// GenerateSlots expands a provider's recurring weekly availability into
// concrete slots for the given horizon, starting from the `from` date. For
// each configured weekday the nearest onward occurrence is used, so when
// `from` itself falls on a working day the same day is included. Consecutive
// slots of slotDuration are emitted within [dailyStart, dailyEnd); a trailing
// partial slot is dropped. The function is pure; idempotence across repeated
// runs comes from the (provider, date, start_time) uniqueness at persistence.
func GenerateSlots(provider *models.Provider, from time.Time, horizonWeeks int, slotDuration time.Duration) ([]models.Slot, error) {
	if horizonWeeks < 1 {
		return nil, fmt.Errorf("horizon must be at least one week")
	}
	if slotDuration <= 0 {
		slotDuration = time.Hour
	}

	dayStart, err := parseTimeOfDay(provider.DailyStart)
	if err != nil {
		return nil, err
	}
	dayEnd, err := parseTimeOfDay(provider.DailyEnd)
	if err != nil {
		return nil, err
	}
	if dayStart >= dayEnd {
		return nil, fmt.Errorf("daily_start must be before daily_end")
	}

	base := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	var slots []models.Slot
	for week := 0; week < horizonWeeks; week++ {
		for _, name := range provider.WorkingDays {
			weekday, err := ParseWeekday(name)
			if err != nil {
				return nil, err
			}

			daysAhead := (int(weekday) - int(base.Weekday()) + 7) % 7
			target := base.AddDate(0, 0, daysAhead+7*week)

			for cursor := dayStart; cursor+slotDuration <= dayEnd; cursor += slotDuration {
				slots = append(slots, models.Slot{
					ProviderID: provider.ID,
					Date:       target,
					StartTime:  formatTimeOfDay(cursor),
					EndTime:    formatTimeOfDay(cursor + slotDuration),
				})
			}
		}
	}
	return slots, nil
}

func formatTimeOfDay(offset time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(offset.Hours()), int(offset.Minutes())%60)
}
