package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type providerRepository interface {
	FindByID(ctx context.Context, id string) (*models.Provider, error)
	FindByUserID(ctx context.Context, userID string) (*models.Provider, error)
	UpdateAvailability(ctx context.Context, id string, workingDays []string, dailyStart, dailyEnd string, hourlyPrice decimal.Decimal) (*models.Provider, error)
}

type slotRepository interface {
	FindByID(ctx context.Context, id string) (*models.Slot, error)
	InsertGeneration(ctx context.Context, slots []models.Slot) (int, error)
	ListOpen(ctx context.Context, filter models.SlotFilter) ([]models.SlotDetail, int, error)
}

type analyticsInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// UpdateAvailabilityRequest carries a provider's declared weekly availability.
type UpdateAvailabilityRequest struct {
	WorkingDays []string `json:"working_days" validate:"required,min=1"`
	DailyStart  string   `json:"daily_start" validate:"required"`
	DailyEnd    string   `json:"daily_end" validate:"required"`
	HourlyPrice string   `json:"hourly_price"`
}

// ScheduleService owns availability updates and the slot materialization they
// trigger, plus the public open-slot listing.
type ScheduleService struct {
	providers providerRepository
	slots     slotRepository
	cache     analyticsInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	horizonWeeks int
	slotDuration time.Duration
}

// NewScheduleService constructs ScheduleService.
func NewScheduleService(providers providerRepository, slots slotRepository, cache analyticsInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, horizonWeeks int, slotDuration time.Duration) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if horizonWeeks < 1 {
		horizonWeeks = 4
	}
	if slotDuration <= 0 {
		slotDuration = time.Hour
	}
	return &ScheduleService{
		providers:    providers,
		slots:        slots,
		cache:        cache,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		horizonWeeks: horizonWeeks,
		slotDuration: slotDuration,
	}
}

// GetAvailability returns the caller's declared availability.
func (s *ScheduleService) GetAvailability(ctx context.Context, userID string) (*models.Availability, error) {
	provider, err := s.providers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "provider profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider")
	}
	availability := models.AvailabilityOf(provider)
	return &availability, nil
}

// UpdateAvailability validates and persists the provider's availability, then
// regenerates slots for the configured horizon. Regeneration runs in a single
// transaction: it either materializes the whole horizon or reports failure,
// and it never touches slots that already exist.
func (s *ScheduleService) UpdateAvailability(ctx context.Context, userID string, req UpdateAvailabilityRequest) (*models.Availability, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	for _, day := range req.WorkingDays {
		if _, err := ParseWeekday(day); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "working_days: "+err.Error())
		}
	}
	start, err := parseTimeOfDay(req.DailyStart)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "daily_start: "+err.Error())
	}
	end, err := parseTimeOfDay(req.DailyEnd)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "daily_end: "+err.Error())
	}
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "daily_start must be before daily_end")
	}

	provider, err := s.providers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "provider profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider")
	}

	price := provider.HourlyPrice
	if req.HourlyPrice != "" {
		price, err = decimal.NewFromString(req.HourlyPrice)
		if err != nil || price.IsNegative() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "hourly_price must be a non-negative decimal")
		}
	}

	provider, err = s.providers.UpdateAvailability(ctx, provider.ID, req.WorkingDays, req.DailyStart, req.DailyEnd, price)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability")
	}

	slots, err := GenerateSlots(provider, time.Now().UTC(), s.horizonWeeks, s.slotDuration)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to expand availability")
	}
	inserted, err := s.slots.InsertGeneration(ctx, slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize slots")
	}
	s.metrics.AddSlotsGenerated(inserted)

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, analyticsCacheKey(provider.ID)); err != nil {
			s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
		}
	}

	s.logger.Info("availability updated",
		zap.String("provider_id", provider.ID),
		zap.Int("slots_inserted", inserted),
		zap.Int("horizon_weeks", s.horizonWeeks))

	availability := models.AvailabilityOf(provider)
	return &availability, nil
}

// CreateSlotRequest carries one ad-hoc slot published outside the recurring
// availability.
type CreateSlotRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// CreateSlot publishes a single slot for the calling provider, outside the
// generated weekly grid. It goes through the same conflict-skipping insert as
// generation, so a duplicate (date, start_time) is rejected rather than
// overwritten.
func (s *ScheduleService) CreateSlot(ctx context.Context, userID string, req CreateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	date, err := time.ParseInLocation(models.DateLayout, req.Date, time.UTC)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	start, err := parseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time: "+err.Error())
	}
	end, err := parseTimeOfDay(req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time: "+err.Error())
	}
	if start >= end {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}

	provider, err := s.providers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "provider profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider")
	}

	slots := []models.Slot{{
		ProviderID: provider.ID,
		Date:       date,
		StartTime:  formatTimeOfDay(start),
		EndTime:    formatTimeOfDay(end),
	}}
	inserted, err := s.slots.InsertGeneration(ctx, slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	if inserted == 0 {
		return nil, appErrors.Clone(appErrors.ErrSlotExists, "a slot already exists at that time")
	}
	s.metrics.AddSlotsGenerated(inserted)

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, analyticsCacheKey(provider.ID)); err != nil {
			s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
		}
	}

	s.logger.Info("slot created",
		zap.String("provider_id", provider.ID),
		zap.String("slot", slots[0].Label()))
	return &slots[0], nil
}

// ListOpenSlots lists bookable slots. The from date defaults to today, so
// past slots never appear even when unbooked.
func (s *ScheduleService) ListOpenSlots(ctx context.Context, filter models.SlotFilter) ([]models.SlotDetail, *models.Pagination, error) {
	if filter.From == nil {
		today := todayUTC()
		filter.From = &today
	}
	slots, total, err := s.slots.ListOpen(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open slots")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return slots, pagination, nil
}

func todayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func analyticsCacheKey(providerID string) string {
	return "analytics:" + providerID
}
