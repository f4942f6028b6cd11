package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/service"
)

func slotFixture(providers *stubProviderRepo, slots *stubSlotRepo) *SlotHandler {
	svc := service.NewScheduleService(providers, slots, nil, nil, nil, nil, 4, time.Hour)
	return NewSlotHandler(svc)
}

func TestSlotHandlerCreateSuccess(t *testing.T) {
	handler := slotFixture(
		&stubProviderRepo{provider: &models.Provider{ID: "prov-1", UserID: "user-1"}},
		&stubSlotRepo{insertN: 1},
	)
	c, rec := authedContext(t, http.MethodPost, "/slots",
		`{"date":"2026-02-02","start_time":"09:00","end_time":"10:00"}`,
		&models.JWTClaims{UserID: "user-1", Role: models.RoleProvider})

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "prov-1", envelope.Data["provider_id"])
	assert.Equal(t, "09:00", envelope.Data["start_time"])
}

func TestSlotHandlerCreateConflictWhenOccupied(t *testing.T) {
	handler := slotFixture(
		&stubProviderRepo{provider: &models.Provider{ID: "prov-1"}},
		&stubSlotRepo{insertN: 0},
	)
	c, rec := authedContext(t, http.MethodPost, "/slots",
		`{"date":"2026-02-02","start_time":"09:00","end_time":"10:00"}`,
		&models.JWTClaims{UserID: "user-1", Role: models.RoleProvider})

	handler.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "SLOT_EXISTS", envelope.Error["code"])
}

func TestSlotHandlerCreateRejectsBadPayload(t *testing.T) {
	handler := slotFixture(&stubProviderRepo{}, &stubSlotRepo{})
	c, rec := authedContext(t, http.MethodPost, "/slots", `{"date":"2026-02-02"}`,
		&models.JWTClaims{UserID: "user-1", Role: models.RoleProvider})

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotHandlerCreateUnauthenticated(t *testing.T) {
	handler := slotFixture(&stubProviderRepo{}, &stubSlotRepo{})
	c, rec := authedContext(t, http.MethodPost, "/slots",
		`{"date":"2026-02-02","start_time":"09:00","end_time":"10:00"}`, nil)

	handler.Create(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
