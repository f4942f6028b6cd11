package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/service"
	"github.com/slotwise/slotwise-api/pkg/config"
	"github.com/slotwise/slotwise-api/pkg/payment"
)

type stubCheckoutRepo struct {
	stubBookingRepo
}

func (s *stubCheckoutRepo) FindByPaymentReference(context.Context, string) (*models.Booking, error) {
	return nil, nil
}

func (s *stubCheckoutRepo) AttachPaymentReference(context.Context, string, string) error {
	return nil
}

func (s *stubCheckoutRepo) MarkPaid(context.Context, string) error { return nil }

func (s *stubCheckoutRepo) Release(context.Context, string) error { return nil }

func checkoutHandlerFixture(gateway payment.CheckoutClient) *CheckoutHandler {
	repo := &stubCheckoutRepo{}
	slots := &stubSlotRepo{slot: &models.Slot{ID: "slot-1", ProviderID: "prov-1"}}
	providers := &stubProviderRepo{provider: &models.Provider{ID: "prov-1", HourlyPrice: decimal.RequireFromString("45")}}
	svc := service.NewCheckoutService(repo, slots, providers, gateway, nil, nil, nil, config.PaymentsConfig{
		Currency:  "usd",
		MaxAmount: decimal.RequireFromString("999999.99"),
		Timeout:   time.Second,
	}, 45*time.Minute)
	return NewCheckoutHandler(svc, "whsec_test", nil)
}

func TestCheckoutHandlerWebhookRejectsBadSignature(t *testing.T) {
	handler := checkoutHandlerFixture(nil)
	c, rec := authedContext(t, http.MethodPost, "/payments/webhook", `{"type":"checkout.session.completed"}`, nil)
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=bogus")

	handler.Webhook(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckoutHandlerInitiateRejectsBadQuantity(t *testing.T) {
	handler := checkoutHandlerFixture(nil)
	c, rec := authedContext(t, http.MethodPost, "/checkout/slot-1?quantity=zero", "",
		&models.JWTClaims{UserID: "user-1", Role: models.RoleConsumer})

	handler.Initiate(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
