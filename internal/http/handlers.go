package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/surfwatch/marine-forecast-service/internal/cache"
	"github.com/surfwatch/marine-forecast-service/internal/clock"
	"github.com/surfwatch/marine-forecast-service/internal/forecast"
	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/ratelimit"
	"github.com/surfwatch/marine-forecast-service/internal/validation"
)

// Freshness buckets for cached forecasts, measured from GeneratedAt.
const (
	freshnessFreshWithin = 4 * time.Hour
	freshnessStaleWithin = 8 * time.Hour
)

// HealthConfig holds dependencies the health handler probes.
type HealthConfig struct {
	// CachePing, when set, is called to check cache reachability. Used when
	// backend is memcached.
	CachePing func() error
	// RemoteConfigured reports whether the upstream client has an API key.
	RemoteConfigured bool
	StartTime        time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc          *forecast.Service
	batch        *forecast.Batch
	spots        []models.Spot
	cache        cache.Cache
	healthConfig *HealthConfig
	logger       *zap.Logger
	clk          clock.Clock

	shuttingDown   atomic.Bool
	healthStatusMu sync.Mutex
	healthPrev     string
}

// NewHandler returns a new Handler.
func NewHandler(
	svc *forecast.Service,
	batch *forecast.Batch,
	spots []models.Spot,
	c cache.Cache,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	clk clock.Clock,
) *Handler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Handler{
		svc:          svc,
		batch:        batch,
		spots:        spots,
		cache:        c,
		healthConfig: healthConfig,
		logger:       logger,
		clk:          clk,
	}
}

// SetShuttingDown flips the health handler into shutting-down mode. Called
// from the shutdown path so load balancers drain before the listener closes.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetForecast handles GET /forecast?lat=&lon=&date=. The date is optional and
// defaults to today.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", "lat must be a number")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATE", "lon must be a number")
		return
	}

	date := h.clk.Now()
	if ds := q.Get("date"); ds != "" {
		parsed, err := time.Parse("2006-01-02", ds)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	fc, err := h.svc.GetForecast(r.Context(), models.GeoCoordinate{Lat: lat, Lon: lon}, date)
	if err != nil {
		writeForecastError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// GetSpotForecast handles GET /spots/{id}/forecast.
func (h *Handler) GetSpotForecast(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	spot, ok := h.findSpot(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_SPOT", "no configured spot with id "+id)
		return
	}

	fc, err := h.svc.GetForecast(r.Context(), spot.Coordinate, h.clk.Now())
	if err != nil {
		writeForecastError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spot":     spot,
		"forecast": fc,
	})
}

// GetSpots handles GET /spots.
func (h *Handler) GetSpots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"spots": h.spots})
}

// PostRefresh handles POST /refresh: a synchronous batch run over the
// configured spot list. Long for an HTTP call, but the run is already
// truncated to the remaining quota and paced, so the worst case is bounded.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if len(h.spots) == 0 {
		writeError(w, r, http.StatusConflict, "NO_SPOTS", "no spots configured")
		return
	}

	results := h.batch.Run(r.Context(), h.spots, h.clk.Now())
	var updated, failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		} else {
			updated++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requested": len(h.spots),
		"attempted": len(results),
		"updated":   updated,
		"failed":    failed,
		"skipped":   len(h.spots) - len(results),
	})
}

// GetStats handles GET /stats: quota and rate-window usage plus per-spot
// cache freshness for today.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	now := h.clk.Now()

	spotStats := make([]map[string]interface{}, 0, len(h.spots))
	for _, spot := range h.spots {
		entry := map[string]interface{}{
			"id":        spot.ID,
			"freshness": "absent",
		}
		key := models.ForecastKey(spot.Coordinate, now)
		if fc, ok, err := h.cache.Get(r.Context(), key); err == nil && ok {
			entry["freshness"] = freshness(now.Sub(fc.GeneratedAt))
			entry["provenance"] = fc.Provenance
			entry["generatedAt"] = fc.GeneratedAt.UTC().Format(time.RFC3339)
		}
		spotStats = append(spotStats, entry)
	}

	resp := map[string]interface{}{
		"quota": map[string]int{
			"used":      h.svc.QuotaUsed(),
			"remaining": h.svc.QuotaRemaining(),
			"max":       h.svc.QuotaMax(),
		},
		"rateWindow": map[string]int{
			"inWindow": h.svc.RequestsInWindow(),
			"limit":    h.svc.RateLimit(),
		},
		"spots":     spotStats,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if bc, ok := h.cache.(*cache.BoundedCache); ok {
		resp["cache"] = map[string]int{
			"entries":  bc.Len(),
			"capacity": bc.Capacity(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig != nil && h.healthConfig.RemoteConfigured {
		checks["upstream"] = "configured"
	} else {
		checks["upstream"] = "synthetic-only"
	}
	if h.svc.QuotaRemaining() > 0 {
		checks["quota"] = "available"
	} else {
		checks["quota"] = "exhausted"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "marine-forecast-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus determines the current health status. Shutting-down
// wins over everything; an unreachable cache backend degrades; quota
// exhaustion is reported in checks but leaves the service healthy, since the
// synthetic fallback still serves complete forecasts.
func (h *Handler) computeHealthStatus(_ context.Context) healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func (h *Handler) findSpot(id string) (models.Spot, bool) {
	for _, s := range h.spots {
		if s.ID == id {
			return s, true
		}
	}
	return models.Spot{}, false
}

// freshness buckets an age into fresh, stale, or old.
func freshness(age time.Duration) string {
	switch {
	case age < freshnessFreshWithin:
		return "fresh"
	case age < freshnessStaleWithin:
		return "stale"
	default:
		return "old"
	}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeForecastError maps pipeline errors onto HTTP statuses. Validation
// failures of the caller's input are 400s; a saturated outbound window is
// 429; a structurally broken forecast is the service's fault, 502.
func writeForecastError(w http.ResponseWriter, r *http.Request, err error) {
	var missing *validation.MissingFieldError
	switch {
	case errors.Is(err, validation.ErrCoordinateOutOfRange):
		writeError(w, r, http.StatusBadRequest, "COORDINATE_OUT_OF_RANGE", err.Error())
	case errors.Is(err, validation.ErrDateOutOfRange):
		writeError(w, r, http.StatusBadRequest, "DATE_OUT_OF_RANGE", err.Error())
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		w.Header().Set("Retry-After", "60")
		writeError(w, r, http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", "forecast request rate exceeded, retry later")
	case errors.As(err, &missing):
		writeError(w, r, http.StatusBadGateway, "MALFORMED_FORECAST", err.Error())
	default:
		writeError(w, r, http.StatusServiceUnavailable, "FORECAST_UNAVAILABLE", "unable to produce forecast")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Debug("forecast error", zap.Error(err))
		}
	}
}
