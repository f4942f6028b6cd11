package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/pkg/jobs"
)

// HoldSweeper periodically releases reserved-but-unpaid bookings whose
// checkout session was never completed, reopening their slots. Sweeps run on
// a background worker queue so a slow database pass never blocks the ticker.
type HoldSweeper struct {
	bookings *BookingService
	queue    *jobs.Queue
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHoldSweeper constructs the sweeper with its own worker queue.
func NewHoldSweeper(bookings *BookingService, interval time.Duration, workers int, logger *zap.Logger) *HoldSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s := &HoldSweeper{
		bookings: bookings,
		interval: interval,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("hold-sweeper", s.handle, jobs.QueueConfig{
		Workers: workers,
		Logger:  logger,
	})
	return s
}

// Start launches the queue workers and the ticker loop.
func (s *HoldSweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.queue.Start(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job := jobs.Job{ID: uuid.NewString(), Type: "sweep-expired-holds"}
				if err := s.queue.Enqueue(job); err != nil {
					s.logger.Warn("failed to enqueue hold sweep", zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the ticker and drains the workers.
func (s *HoldSweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.queue.Stop()
}

func (s *HoldSweeper) handle(ctx context.Context, _ jobs.Job) error {
	released, err := s.bookings.SweepExpiredHolds(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		s.logger.Info("released expired holds", zap.Int("count", released))
	}
	return nil
}
