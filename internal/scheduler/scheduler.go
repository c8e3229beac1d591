package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/surfwatch/marine-forecast-service/internal/forecast"
	"github.com/surfwatch/marine-forecast-service/internal/models"
)

// Scheduler periodically refreshes forecasts for the configured spot list.
type Scheduler struct {
	scheduler *gocron.Scheduler
	batch     *forecast.Batch
	spots     []models.Spot
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler that runs batch over spots every interval.
func New(batch *forecast.Batch, spots []models.Spot, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		batch:     batch,
		spots:     spots,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.spots) == 0 {
		s.logger.Info("no spots configured, batch refresh disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		s.logger.Info("starting batch forecast refresh", zap.Int("spots", len(s.spots)))

		// The run itself is paced; the timeout only bounds a wedged upstream.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		results := s.batch.Run(ctx, s.spots, time.Now())
		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		s.logger.Info("batch forecast refresh complete",
			zap.Int("attempted", len(results)),
			zap.Int("failed", failed),
		)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
