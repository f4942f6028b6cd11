package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	"github.com/slotwise/slotwise-api/pkg/config"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
	"github.com/slotwise/slotwise-api/pkg/export"
)

type analyticsRepository interface {
	AvailableSlots(ctx context.Context, providerID string, today time.Time, limit int) ([]models.Slot, int, error)
	PreviousSlots(ctx context.Context, providerID string, today time.Time, limit int) ([]models.Slot, int, error)
	UpcomingBooked(ctx context.Context, providerID string, today time.Time) ([]models.BookingDetail, error)
}

type analyticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ExportFormat selects the rendering of a schedule export.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// AnalyticsService serves inventory summaries and schedule exports for
// providers. Summaries are cached per provider; every write path that touches
// slot state invalidates the corresponding key.
type AnalyticsService struct {
	repo      analyticsRepository
	providers providerRepository
	cache     analyticsCache
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
	cfg       config.AnalyticsConfig
}

// NewAnalyticsService constructs AnalyticsService.
func NewAnalyticsService(repo analyticsRepository, providers providerRepository, cache analyticsCache, logger *zap.Logger, cfg config.AnalyticsConfig) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{
		repo:      repo,
		providers: providers,
		cache:     cache,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
		cfg:       cfg,
	}
}

func (s *AnalyticsService) resolveProvider(ctx context.Context, userID string) (*models.Provider, error) {
	provider, err := s.providers.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "provider profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load provider")
	}
	return provider, nil
}

// Summarize buckets a provider's slots into available (open and upcoming) and
// previous (past or booked), with bounded label samples. The second return
// value reports whether the summary came from cache.
func (s *AnalyticsService) Summarize(ctx context.Context, userID string) (*models.ProviderAnalytics, bool, error) {
	provider, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	key := analyticsCacheKey(provider.ID)

	if s.cache != nil {
		var cached models.ProviderAnalytics
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, true, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("analytics cache read failed", zap.Error(err))
		}
	}

	today := todayUTC()

	available, availableTotal, err := s.repo.AvailableSlots(ctx, provider.ID, today, s.cfg.SampleSize)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate available slots")
	}
	previous, previousTotal, err := s.repo.PreviousSlots(ctx, provider.ID, today, s.cfg.SampleSize)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate previous slots")
	}

	summary := &models.ProviderAnalytics{
		AvailableCount:        availableTotal,
		PreviousCount:         previousTotal,
		AvailableAppointments: slotLabels(available),
		PreviousAppointments:  slotLabels(previous),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("analytics cache write failed", zap.Error(err))
		}
	}

	return summary, false, nil
}

// Export renders the provider's upcoming booked schedule as CSV or PDF.
func (s *AnalyticsService) Export(ctx context.Context, userID string, format ExportFormat) ([]byte, string, error) {
	provider, err := s.resolveProvider(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	bookings, err := s.repo.UpcomingBooked(ctx, provider.ID, todayUTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			bookings = nil
		} else {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked schedule")
		}
	}

	table := export.Table{
		Headers: []string{"Date", "Start", "End", "Consumer", "Paid", "Booked At"},
		Rows:    make([][]string, 0, len(bookings)),
	}
	for _, b := range bookings {
		paid := "no"
		if b.IsPaid {
			paid = "yes"
		}
		table.Rows = append(table.Rows, []string{
			b.Date.Format(models.DateLayout),
			b.StartTime,
			b.EndTime,
			b.ConsumerID,
			paid,
			b.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	switch format {
	case FormatCSV:
		data, err := s.csv.Render(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV export")
		}
		return data, "text/csv", nil
	case FormatPDF:
		data, err := s.pdf.Render(table, "Upcoming Schedule")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF export")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func slotLabels(slots []models.Slot) []string {
	labels := make([]string, 0, len(slots))
	for _, slot := range slots {
		labels = append(labels, slot.Label())
	}
	return labels
}
