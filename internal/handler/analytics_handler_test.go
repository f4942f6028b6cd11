package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/service"
	"github.com/slotwise/slotwise-api/pkg/config"
)

type stubAnalyticsRepo struct {
	availableTotal int
	previousTotal  int
	upcoming       []models.BookingDetail
}

func (s *stubAnalyticsRepo) AvailableSlots(context.Context, string, time.Time, int) ([]models.Slot, int, error) {
	return nil, s.availableTotal, nil
}

func (s *stubAnalyticsRepo) PreviousSlots(context.Context, string, time.Time, int) ([]models.Slot, int, error) {
	return nil, s.previousTotal, nil
}

func (s *stubAnalyticsRepo) UpcomingBooked(context.Context, string, time.Time) ([]models.BookingDetail, error) {
	return s.upcoming, nil
}

type stubProviderRepo struct {
	provider *models.Provider
}

func (s *stubProviderRepo) FindByID(context.Context, string) (*models.Provider, error) {
	return s.provider, nil
}

func (s *stubProviderRepo) FindByUserID(context.Context, string) (*models.Provider, error) {
	return s.provider, nil
}

func (s *stubProviderRepo) UpdateAvailability(context.Context, string, []string, string, string, decimal.Decimal) (*models.Provider, error) {
	return s.provider, nil
}

func analyticsHandlerFixture(repo *stubAnalyticsRepo) *AnalyticsHandler {
	providers := &stubProviderRepo{provider: &models.Provider{ID: "prov-1", UserID: "user-1"}}
	svc := service.NewAnalyticsService(repo, providers, nil, nil, config.AnalyticsConfig{SampleSize: 5})
	return NewAnalyticsHandler(svc)
}

func TestAnalyticsHandlerSummary(t *testing.T) {
	handler := analyticsHandlerFixture(&stubAnalyticsRepo{availableTotal: 7, previousTotal: 2})
	c, rec := authedContext(t, http.MethodGet, "/analytics", "",
		&models.JWTClaims{UserID: "user-1", Role: models.RoleProvider})

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(7), envelope.Data["available_count"])
	assert.Equal(t, float64(2), envelope.Data["previous_count"])
	assert.Equal(t, false, envelope.Meta["cached"])
}

func TestAnalyticsHandlerSummaryUnauthenticated(t *testing.T) {
	handler := analyticsHandlerFixture(&stubAnalyticsRepo{})
	c, rec := authedContext(t, http.MethodGet, "/analytics", "", nil)

	handler.Summary(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalyticsHandlerExportCSV(t *testing.T) {
	handler := analyticsHandlerFixture(&stubAnalyticsRepo{upcoming: []models.BookingDetail{{
		Booking:   models.Booking{ID: "bk-1", ConsumerID: "user-2"},
		Date:      time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "10:00",
	}}})
	c, rec := authedContext(t, http.MethodGet, "/analytics/export?format=csv", "",
		&models.JWTClaims{UserID: "user-1", Role: models.RoleProvider})

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "schedule.csv")
	assert.Contains(t, rec.Body.String(), "2026-02-02")
}

func TestAnalyticsHandlerExportRejectsUnknownFormat(t *testing.T) {
	handler := analyticsHandlerFixture(&stubAnalyticsRepo{})
	c, rec := authedContext(t, http.MethodGet, "/analytics/export?format=xlsx", "",
		&models.JWTClaims{UserID: "user-1", Role: models.RoleProvider})

	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
