package forecast

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/surfwatch/marine-forecast-service/internal/cache"
	"github.com/surfwatch/marine-forecast-service/internal/calibration"
	"github.com/surfwatch/marine-forecast-service/internal/client"
	"github.com/surfwatch/marine-forecast-service/internal/clock"
	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/observability"
	"github.com/surfwatch/marine-forecast-service/internal/quota"
	"github.com/surfwatch/marine-forecast-service/internal/ratelimit"
	"github.com/surfwatch/marine-forecast-service/internal/synthetic"
	"github.com/surfwatch/marine-forecast-service/internal/validation"
)

// FallbackReasonQuota is recorded when the daily quota is exhausted and the
// remote upstream is never attempted.
const FallbackReasonQuota = "quota_exhausted"

// Service produces forecasts using a cache-aside flow: cache lookup, then a
// rate-limited and quota-gated remote fetch with calibration, falling back to
// the synthetic generator when the remote path is unavailable. Every returned
// forecast has passed structural validation and carries its provenance.
type Service struct {
	client    client.ForecastClient
	cache     cache.Cache
	overlay   *calibration.Overlay
	generator *synthetic.Generator
	limiter   *ratelimit.SlidingWindow
	quota     *quota.Tracker
	logger    *zap.Logger
	clk       clock.Clock

	stampede     *stampedeTracker
	coalescer    *requestCoalescer
	cacheBackend string
	horizonHours int
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithClock overrides the time source. Tests use this to pin validation
// windows and seasonal behavior.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) { s.clk = clk }
}

// WithCoalescing enables single-flight collapsing of concurrent misses for
// the same forecast key. Off by default: the bounded cache plus the sliding
// window limiter already keep duplicate upstream calls rare.
func WithCoalescing() Option {
	return func(s *Service) { s.coalescer = newRequestCoalescer() }
}

// WithCacheBackend sets the backend label used on cache metrics.
func WithCacheBackend(name string) Option {
	return func(s *Service) { s.cacheBackend = name }
}

// WithHorizonHours sets how many hourly points are requested from the
// upstream per fetch.
func WithHorizonHours(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.horizonHours = n
		}
	}
}

// NewService wires the forecast pipeline. All collaborators are required
// except the overlay, which may be nil when no calibration regions are
// configured.
func NewService(
	fc client.ForecastClient,
	c cache.Cache,
	overlay *calibration.Overlay,
	gen *synthetic.Generator,
	limiter *ratelimit.SlidingWindow,
	tracker *quota.Tracker,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		client:       fc,
		cache:        c,
		overlay:      overlay,
		generator:    gen,
		limiter:      limiter,
		quota:        tracker,
		logger:       logger,
		clk:          clock.Real{},
		stampede:     newStampedeTracker(),
		cacheBackend: "in_memory",
		horizonHours: 24,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetForecast returns the forecast for a coordinate and target date.
//
// Invalid coordinates and out-of-window dates fail fast. A cache hit is
// returned as-is, provenance included. On a miss the sliding window limiter
// gates the attempt; a denial surfaces ErrRateLimitExceeded rather than
// silently degrading, since the caller is expected to retry later. The remote
// path is only attempted while daily quota remains, and any remote failure
// degrades to the synthetic generator so a structurally complete forecast is
// always produced.
func (s *Service) GetForecast(ctx context.Context, coord models.GeoCoordinate, date time.Time) (models.Forecast, error) {
	if err := validation.ValidateCoordinate(coord); err != nil {
		return models.Forecast{}, err
	}
	if err := validation.ValidateDate(date, s.clk.Now()); err != nil {
		return models.Forecast{}, err
	}

	key := models.ForecastKey(coord, date)
	log := s.logger.With(
		zap.Float64("lat", coord.Lat),
		zap.Float64("lon", coord.Lon),
		zap.String("forecastKey", key),
	)

	if fc, ok, err := s.cache.Get(ctx, key); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", observability.CategorizeCacheError(err)).Inc()
		log.Warn("cache read failed, continuing to fetch", zap.Error(err))
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(s.cacheBackend).Inc()
		observability.ForecastsServedTotal.WithLabelValues(string(fc.Provenance)).Inc()
		log.Debug("cache hit", zap.String("provenance", string(fc.Provenance)))
		return fc, nil
	}

	if concurrent := s.stampede.misses(key); concurrent > 1 {
		observability.StampedeDetectedTotal.Inc()
		log.Warn("concurrent cache misses for same key", zap.Int64("concurrent", concurrent))
	}
	defer s.stampede.done(key)

	if s.coalescer != nil {
		return s.coalescer.do(key, func() (models.Forecast, error) {
			return s.fill(ctx, coord, date, key, log)
		})
	}
	return s.fill(ctx, coord, date, key, log)
}

// fill runs the miss path: limiter, quota gate, remote fetch with calibration
// or synthetic fallback, validation, and cache write-back.
func (s *Service) fill(ctx context.Context, coord models.GeoCoordinate, date time.Time, key string, log *zap.Logger) (models.Forecast, error) {
	if err := s.limiter.Allow(); err != nil {
		observability.RateLimitDeniedTotal.Inc()
		log.Warn("outbound rate limit exceeded", zap.Int("inWindow", s.limiter.InWindow()))
		return models.Forecast{}, err
	}

	raw := s.acquire(ctx, coord, date, log)

	fc, err := validation.Validate(raw)
	if err != nil {
		log.Error("forecast failed validation", zap.Error(err), zap.String("provenance", string(raw.Provenance)))
		return models.Forecast{}, err
	}

	if err := s.cache.Set(ctx, key, fc); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", observability.CategorizeCacheError(err)).Inc()
		log.Warn("cache write failed", zap.Error(err))
	}

	observability.ForecastsServedTotal.WithLabelValues(string(fc.Provenance)).Inc()
	log.Info("forecast produced",
		zap.String("provenance", string(fc.Provenance)),
		zap.Int("quotaRemaining", s.quota.Remaining()),
	)
	return fc, nil
}

// acquire obtains a raw forecast: remote with calibration when quota remains
// and the upstream cooperates, synthetic otherwise. It never fails; the
// synthetic generator is the floor of the fallback chain.
func (s *Service) acquire(ctx context.Context, coord models.GeoCoordinate, date time.Time, log *zap.Logger) models.RawForecast {
	if !s.quota.CanSpend() {
		observability.FallbacksTotal.WithLabelValues(FallbackReasonQuota).Inc()
		log.Warn("daily quota exhausted, serving synthetic forecast",
			zap.Int("quotaUsed", s.quota.Used()),
			zap.Int("quotaMax", s.quota.Max()),
		)
		return s.generator.Generate(coord, date)
	}

	raw, err := s.client.Fetch(ctx, coord, s.horizonHours)
	if err != nil {
		reason := string(client.CategorizeError(err))
		observability.FallbacksTotal.WithLabelValues(reason).Inc()
		if errors.Is(err, client.ErrUnconfigured) {
			log.Debug("remote client unconfigured, serving synthetic forecast")
		} else {
			log.Warn("remote fetch failed, serving synthetic forecast",
				zap.Error(err),
				zap.String("reason", reason),
			)
		}
		return s.generator.Generate(coord, date)
	}

	s.quota.Spend()
	observability.QuotaSpentTotal.Inc()

	if s.overlay != nil {
		raw = s.overlay.Apply(raw, coord, date)
	}
	return raw
}

// QuotaRemaining reports remaining daily upstream calls. Exposed for the
// stats endpoint and the quota gauge.
func (s *Service) QuotaRemaining() int { return s.quota.Remaining() }

// QuotaUsed reports upstream calls spent today.
func (s *Service) QuotaUsed() int { return s.quota.Used() }

// QuotaMax reports the daily upstream call ceiling.
func (s *Service) QuotaMax() int { return s.quota.Max() }

// RequestsInWindow reports how many upstream attempts fall inside the current
// sliding window.
func (s *Service) RequestsInWindow() int { return s.limiter.InWindow() }

// RateLimit reports the sliding window ceiling.
func (s *Service) RateLimit() int { return s.limiter.Limit() }
