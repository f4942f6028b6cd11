package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/repository"
	"github.com/slotwise/slotwise-api/pkg/config"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
	"github.com/slotwise/slotwise-api/pkg/payment"
)

type checkoutBookingRepository interface {
	Reserve(ctx context.Context, slotID, consumerID string, paymentRef *string) (*models.Booking, error)
	FindBySlot(ctx context.Context, slotID string) (*models.Booking, error)
	FindByPaymentReference(ctx context.Context, ref string) (*models.Booking, error)
	AttachPaymentReference(ctx context.Context, bookingID, ref string) error
	MarkPaid(ctx context.Context, bookingID string) error
	Release(ctx context.Context, bookingID string) error
}

// CheckoutService bridges reservations to the external payment gateway. The
// slot is held at checkout-intent creation, before payment confirmation, so
// "reserved" and "paid" are distinct sequential states; failed or abandoned
// payments release the hold through Reconcile or the expiry sweep.
type CheckoutService struct {
	bookings  checkoutBookingRepository
	slots     slotRepository
	providers providerRepository
	gateway   payment.CheckoutClient
	cache     analyticsInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       config.PaymentsConfig
	holdTTL   time.Duration
}

// NewCheckoutService constructs CheckoutService. holdTTL bounds the gateway
// session lifetime so a session can never outlive its hold.
func NewCheckoutService(bookings checkoutBookingRepository, slots slotRepository, providers providerRepository, gateway payment.CheckoutClient, cache analyticsInvalidator, metrics *MetricsService, logger *zap.Logger, cfg config.PaymentsConfig, holdTTL time.Duration) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if holdTTL < payment.MinSessionLifetime {
		holdTTL = payment.MinSessionLifetime
	}
	if holdTTL > payment.MaxSessionLifetime {
		holdTTL = payment.MaxSessionLifetime
	}
	return &CheckoutService{
		bookings:  bookings,
		slots:     slots,
		providers: providers,
		gateway:   gateway,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		holdTTL:   holdTTL,
	}
}

// Quote is the priced outcome of the clamping rules applied to a checkout.
type Quote struct {
	Total       decimal.Decimal
	Quantity    int64
	AmountMinor int64
}

// PriceCheckout applies the numeric contract: total = hourly rate x quantity,
// clamped to the maximum payable amount. A triggered clamp forces quantity to
// one so the unit price cannot overflow the gateway's minor-unit field. The
// amount is converted to minor units via round(total x 100).
func PriceCheckout(hourly decimal.Decimal, quantity int64, maxAmount decimal.Decimal) (Quote, error) {
	if hourly.IsNegative() || hourly.IsZero() {
		return Quote{}, appErrors.Clone(appErrors.ErrInvalidPrice, "provider has no valid hourly price")
	}
	if quantity <= 0 {
		return Quote{}, appErrors.Clone(appErrors.ErrValidation, "quantity must be positive")
	}

	total := hourly.Mul(decimal.NewFromInt(quantity))
	if total.GreaterThan(maxAmount) {
		total = maxAmount
		quantity = 1
	}

	return Quote{
		Total:       total,
		Quantity:    quantity,
		AmountMinor: total.Shift(2).Round(0).IntPart(),
	}, nil
}

// Initiate opens a gateway checkout session for a slot and records the hold:
// the slot is reserved (or the caller's existing unpaid hold is refreshed)
// with the session id as payment reference.
func (s *CheckoutService) Initiate(ctx context.Context, claims *models.JWTClaims, slotID string, quantity int64) (*payment.CheckoutIntent, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleConsumer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only consumers may check out slots")
	}
	if quantity == 0 {
		quantity = 1
	}

	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	// A consumer re-initiating checkout for their own unpaid hold gets a
	// fresh session instead of a conflict.
	var held *models.Booking
	if slot.IsBooked {
		existing, err := s.bookings.FindBySlot(ctx, slotID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
		}
		if existing == nil || existing.ConsumerID != claims.UserID || existing.IsPaid {
			return nil, appErrors.ErrAlreadyBooked
		}
		held = existing
	}

	provider, err := s.providers.FindByID(ctx, slot.ProviderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "provider not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider")
	}

	quote, err := PriceCheckout(provider.HourlyPrice, quantity, s.cfg.MaxAmount)
	if err != nil {
		return nil, err
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	intent, err := s.gateway.CreateCheckout(gatewayCtx, payment.CheckoutRequest{
		AmountMinor: quote.AmountMinor,
		Quantity:    1,
		Currency:    s.cfg.Currency,
		ProductName: fmt.Sprintf("Appointment: %s", slot.Label()),
		Description: fmt.Sprintf("Provider: %s", provider.DisplayName),
		ExpiresAt:   time.Now().UTC().Add(s.holdTTL),
		Metadata: map[string]string{
			"slot_id":     slot.ID,
			"consumer_id": claims.UserID,
			"quantity":    fmt.Sprintf("%d", quote.Quantity),
		},
	})
	if err != nil {
		var gatewayErr *payment.GatewayError
		if errors.As(err, &gatewayErr) {
			return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, gatewayErr.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "payment gateway request failed")
	}
	s.metrics.IncCheckoutSession()

	if held != nil {
		if err := s.bookings.AttachPaymentReference(ctx, held.ID, intent.Reference); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment reference")
		}
	} else {
		if _, err := s.bookings.Reserve(ctx, slotID, claims.UserID, &intent.Reference); err != nil {
			if errors.Is(err, repository.ErrSlotTaken) {
				// Lost the race after the session was opened; the unused
				// session expires on the gateway side.
				s.metrics.IncBookingConflict()
				return nil, appErrors.ErrAlreadyBooked
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve slot")
		}
	}

	s.invalidateAnalytics(ctx, slot.ProviderID)
	s.logger.Info("checkout initiated",
		zap.String("slot_id", slot.ID),
		zap.String("reference", intent.Reference),
		zap.String("amount", quote.Total.StringFixed(2)))

	return intent, nil
}

// CheckoutCallback is the settled state a gateway webhook reports for a
// session. SlotID and ConsumerID echo the session metadata written at
// Initiate, so a paid session can be traced back to its slot even when the
// hold is gone.
type CheckoutCallback struct {
	Reference  string
	SlotID     string
	ConsumerID string
	Succeeded  bool
}

// Reconcile settles the booking correlated with a gateway callback. Success
// marks it paid; failure or expiry releases the hold. A successful payment
// whose hold was already swept is re-reserved from the session metadata, and
// flagged for refund when the slot has gone to someone else.
func (s *CheckoutService) Reconcile(ctx context.Context, cb CheckoutCallback) error {
	if cb.Reference == "" {
		return appErrors.Clone(appErrors.ErrValidation, "payment reference is required")
	}

	booking, err := s.bookings.FindByPaymentReference(ctx, cb.Reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if cb.Succeeded {
				return s.recoverPaidSession(ctx, cb)
			}
			s.logger.Warn("callback for unknown payment reference", zap.String("reference", cb.Reference))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve payment reference")
	}

	if cb.Succeeded {
		if err := s.bookings.MarkPaid(ctx, booking.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark booking paid")
		}
		s.logger.Info("booking paid", zap.String("booking_id", booking.ID), zap.String("reference", cb.Reference))
		return nil
	}

	if err := s.bookings.Release(ctx, booking.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Already paid or already released; nothing to unwind.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release booking")
	}
	s.metrics.AddReleasedHolds(1)
	s.invalidateAnalytics(ctx, "*")
	s.logger.Info("hold released after failed payment",
		zap.String("booking_id", booking.ID), zap.String("reference", cb.Reference))
	return nil
}

// recoverPaidSession handles a success callback whose hold no longer exists:
// the session was paid after the expiry sweep deleted the booking. The slot
// is re-reserved from the session metadata; if it has been taken in the
// meantime the payment is flagged as orphaned so it can be refunded.
func (s *CheckoutService) recoverPaidSession(ctx context.Context, cb CheckoutCallback) error {
	if cb.SlotID == "" || cb.ConsumerID == "" {
		s.orphanPayment(cb, errors.New("session carries no slot metadata"))
		return nil
	}

	booking, err := s.bookings.Reserve(ctx, cb.SlotID, cb.ConsumerID, &cb.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) || errors.Is(err, sql.ErrNoRows) {
			s.orphanPayment(cb, err)
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to re-reserve paid slot")
	}
	if err := s.bookings.MarkPaid(ctx, booking.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark booking paid")
	}

	s.invalidateAnalytics(ctx, "*")
	s.logger.Info("paid session recovered after hold expiry",
		zap.String("booking_id", booking.ID),
		zap.String("slot_id", cb.SlotID),
		zap.String("reference", cb.Reference))
	return nil
}

func (s *CheckoutService) orphanPayment(cb CheckoutCallback, cause error) {
	s.metrics.IncOrphanedPayment()
	s.logger.Error("paid session has no claimable booking, refund required",
		zap.String("reference", cb.Reference),
		zap.String("slot_id", cb.SlotID),
		zap.String("consumer_id", cb.ConsumerID),
		zap.Error(cause))
}

func (s *CheckoutService) invalidateAnalytics(ctx context.Context, providerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, analyticsCacheKey(providerID)); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}
