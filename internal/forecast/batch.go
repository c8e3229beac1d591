package forecast

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/observability"
)

// defaultPacing is the minimum gap between consecutive spot fetches in a
// batch run, so a refresh cycle never bursts the upstream.
const defaultPacing = time.Second

// Fetcher is the part of the Service a batch run needs.
type Fetcher interface {
	GetForecast(ctx context.Context, coord models.GeoCoordinate, date time.Time) (models.Forecast, error)
	QuotaRemaining() int
}

// SpotResult is the outcome of refreshing a single spot.
type SpotResult struct {
	Spot     models.Spot
	Forecast models.Forecast
	Err      error
}

// Batch refreshes the forecasts of a configured spot list. Priority spots are
// refreshed first, the run is truncated to the remaining daily quota, and
// fetches are paced sequentially.
type Batch struct {
	fetcher  Fetcher
	priority map[string]struct{}
	pacing   time.Duration
	logger   *zap.Logger
}

// NewBatch builds a batch refresher. priorityIDs lists spot IDs that sort to
// the front of every run; pacing <= 0 selects the default one second gap.
func NewBatch(f Fetcher, priorityIDs []string, pacing time.Duration, logger *zap.Logger) *Batch {
	prio := make(map[string]struct{}, len(priorityIDs))
	for _, id := range priorityIDs {
		prio[id] = struct{}{}
	}
	if pacing <= 0 {
		pacing = defaultPacing
	}
	return &Batch{fetcher: f, priority: prio, pacing: pacing, logger: logger}
}

// Run refreshes forecasts for the given spots dated now. Spots beyond the
// remaining quota are skipped entirely rather than burned as synthetic
// fallbacks. Results are returned in fetch order; a per-spot error does not
// stop the run, but context cancellation does.
func (b *Batch) Run(ctx context.Context, spots []models.Spot, now time.Time) []SpotResult {
	started := time.Now()
	observability.BatchRunsTotal.Inc()

	ordered := b.order(spots)
	if budget := b.fetcher.QuotaRemaining(); len(ordered) > budget {
		b.logger.Warn("truncating batch run to remaining quota",
			zap.Int("spots", len(ordered)),
			zap.Int("quotaRemaining", budget),
		)
		ordered = ordered[:budget]
	}

	results := make([]SpotResult, 0, len(ordered))
	for i, spot := range ordered {
		if i > 0 {
			select {
			case <-ctx.Done():
				b.logger.Warn("batch run cancelled", zap.Int("completed", i), zap.Error(ctx.Err()))
				observability.BatchCycleDuration.Observe(time.Since(started).Seconds())
				return results
			case <-time.After(b.pacing):
			}
		}

		fc, err := b.fetcher.GetForecast(ctx, spot.Coordinate, now)
		if err != nil {
			b.logger.Warn("batch spot refresh failed",
				zap.String("spotID", spot.ID),
				zap.Error(err),
			)
		} else {
			observability.BatchSpotsUpdated.Inc()
		}
		results = append(results, SpotResult{Spot: spot, Forecast: fc, Err: err})
	}

	observability.BatchCycleDuration.Observe(time.Since(started).Seconds())
	b.logger.Info("batch run complete",
		zap.Int("spots", len(results)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return results
}

// order returns spots with priority IDs first, otherwise preserving the
// configured order.
func (b *Batch) order(spots []models.Spot) []models.Spot {
	ordered := make([]models.Spot, len(spots))
	copy(ordered, spots)
	sort.SliceStable(ordered, func(i, j int) bool {
		_, pi := b.priority[ordered[i].ID]
		_, pj := b.priority[ordered[j].ID]
		return pi && !pj
	})
	return ordered
}
