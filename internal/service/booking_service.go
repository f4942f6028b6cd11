package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/internal/repository"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type bookingRepository interface {
	Reserve(ctx context.Context, slotID, consumerID string, paymentRef *string) (*models.Booking, error)
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindBySlot(ctx context.Context, slotID string) (*models.Booking, error)
	ListByConsumer(ctx context.Context, consumerID string) ([]models.BookingDetail, error)
	Release(ctx context.Context, bookingID string) error
	ReleaseExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// BookingService is the reservation coordinator: it guarantees at most one
// successful reservation per slot and owns the expiry sweep for stale
// checkout holds.
type BookingService struct {
	bookings bookingRepository
	slots    slotRepository
	cache    analyticsInvalidator
	metrics  *MetricsService
	logger   *zap.Logger
	holdTTL  time.Duration
}

// NewBookingService constructs BookingService.
func NewBookingService(bookings bookingRepository, slots slotRepository, cache analyticsInvalidator, metrics *MetricsService, logger *zap.Logger, holdTTL time.Duration) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if holdTTL <= 0 {
		holdTTL = 30 * time.Minute
	}
	return &BookingService{
		bookings: bookings,
		slots:    slots,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		holdTTL:  holdTTL,
	}
}

// Reserve claims a slot for the calling consumer. Only the CONSUMER role may
// reserve. Two racing calls for the same slot yield exactly one booking; the
// loser receives the conflict error so it can re-poll open slots.
func (s *BookingService) Reserve(ctx context.Context, claims *models.JWTClaims, slotID string) (*models.Booking, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleConsumer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only consumers may reserve slots")
	}
	if slotID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot_id is required")
	}

	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	booking, err := s.bookings.Reserve(ctx, slotID, claims.UserID, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		if errors.Is(err, repository.ErrSlotTaken) {
			s.metrics.IncBookingConflict()
			return nil, appErrors.ErrAlreadyBooked
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve slot")
	}

	s.invalidateAnalytics(ctx, slot.ProviderID)
	s.logger.Info("slot reserved",
		zap.String("slot_id", slotID),
		zap.String("booking_id", booking.ID),
		zap.String("consumer_id", claims.UserID))

	return booking, nil
}

// List returns the caller's bookings, newest first.
func (s *BookingService) List(ctx context.Context, claims *models.JWTClaims) ([]models.BookingDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	bookings, err := s.bookings.ListByConsumer(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// Cancel releases the caller's unpaid booking and reopens its slot. Paid
// bookings cannot be cancelled; a payment landing between the check and the
// release surfaces as a not-releasable conflict.
func (s *BookingService) Cancel(ctx context.Context, claims *models.JWTClaims, bookingID string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if bookingID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "booking id is required")
	}

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	if booking.ConsumerID != claims.UserID && claims.Role != models.RoleAdmin {
		// Other consumers' bookings are indistinguishable from missing ones.
		return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	if booking.IsPaid {
		return appErrors.Clone(appErrors.ErrAlreadyPaid, "paid bookings cannot be cancelled")
	}

	if err := s.bookings.Release(ctx, booking.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotReleasable, "booking can no longer be cancelled")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release booking")
	}

	s.metrics.AddReleasedHolds(1)
	s.invalidateAnalytics(ctx, "*")
	s.logger.Info("booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("consumer_id", claims.UserID))
	return nil
}

// SweepExpiredHolds releases checkout holds that stayed unpaid past the hold
// TTL, reopening their slots. Invoked periodically by the background queue.
func (s *BookingService) SweepExpiredHolds(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.holdTTL)
	released, err := s.bookings.ReleaseExpired(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep expired holds")
	}
	if released > 0 {
		s.metrics.AddReleasedHolds(released)
		s.invalidateAnalytics(ctx, "*")
		s.logger.Info("expired holds released", zap.Int("count", released))
	}
	return released, nil
}

func (s *BookingService) invalidateAnalytics(ctx context.Context, providerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, analyticsCacheKey(providerID)); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}
