package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/service"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
	"github.com/slotwise/slotwise-api/pkg/payment"
	"github.com/slotwise/slotwise-api/pkg/response"
)

// CheckoutHandler exposes the payment bridge: session creation for consumers
// and the gateway callback.
type CheckoutHandler struct {
	checkout      *service.CheckoutService
	webhookSecret string
	logger        *zap.Logger
}

// NewCheckoutHandler constructs handler.
func NewCheckoutHandler(checkout *service.CheckoutService, webhookSecret string, logger *zap.Logger) *CheckoutHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutHandler{checkout: checkout, webhookSecret: webhookSecret, logger: logger}
}

// Initiate godoc
// @Summary Start a hosted checkout for a slot
// @Tags Checkout
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot id"
// @Param quantity query int false "Hour quantity, defaults to 1"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /checkout/{slotId} [post]
func (h *CheckoutHandler) Initiate(c *gin.Context) {
	quantity, err := strconv.ParseInt(c.DefaultQuery("quantity", "1"), 10, 64)
	if err != nil || quantity <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "quantity must be a positive integer"))
		return
	}

	intent, err := h.checkout.Initiate(c.Request.Context(), claimsFromContext(c), c.Param("slotId"), quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, intent, nil)
}

// Webhook godoc
// @Summary Payment gateway callback
// @Tags Checkout
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/webhook [post]
func (h *CheckoutHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unreadable webhook payload"))
		return
	}

	event, err := payment.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "webhook signature verification failed"))
		return
	}

	var succeeded bool
	switch event.Type {
	case "checkout.session.completed":
		succeeded = true
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		succeeded = false
	default:
		// Unhandled event types are acknowledged so the gateway stops retrying.
		response.JSON(c, http.StatusOK, gin.H{"status": "ignored"}, nil)
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "malformed webhook event"))
		return
	}

	callback := service.CheckoutCallback{
		Reference:  session.ID,
		SlotID:     session.Metadata["slot_id"],
		ConsumerID: session.Metadata["consumer_id"],
		Succeeded:  succeeded,
	}
	if err := h.checkout.Reconcile(c.Request.Context(), callback); err != nil {
		h.logger.Error("webhook reconciliation failed",
			zap.String("reference", session.ID), zap.Error(err))
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "processed"}, nil)
}
