package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/observability"
)

// ForecastClient fetches a raw forecast for a coordinate from the remote
// point-forecast provider.
type ForecastClient interface {
	Fetch(ctx context.Context, coord models.GeoCoordinate, horizonHours int) (models.RawForecast, error)
}

var (
	// ErrUnconfigured means no API credential is set. Never retried; the
	// orchestrator routes straight to the synthetic fallback.
	ErrUnconfigured = errors.New("point forecast API key not configured")

	// ErrCircuitOpen means the breaker is rejecting calls after repeated
	// upstream failures.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

// Forecast model and request constants for the point-forecast API.
const (
	forecastModel = "gfs"
	surfaceLevel  = "surface"
)

// surfParameters is the fixed parameter set requested from the provider.
var surfParameters = []string{
	"wind", "waves", "temp", "dewpoint", "rh",
	"pressure", "cloudcover", "visibility", "gust", "cape",
}

// PointForecastClient calls the point-forecast POST endpoint and maps its
// parallel time-series arrays into the RawForecast shape. Malformed upstream
// payloads degrade field-by-field via per-field defaults, never abort.
type PointForecastClient struct {
	apiKey  string
	apiURL  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	rnd     *rand.Rand
}

// NewPointForecastClient creates a client. An empty apiKey is allowed and
// puts the client in permanent unconfigured mode. rnd seeds the synthetic
// tide heights; nil uses a time-seeded source.
func NewPointForecastClient(apiKey, apiURL string, timeout time.Duration, rnd *rand.Rand) *PointForecastClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "point-forecast",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &PointForecastClient{
		apiKey:  apiKey,
		apiURL:  apiURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		rnd:     rnd,
	}
}

// Configured reports whether an API credential is present.
func (c *PointForecastClient) Configured() bool {
	return c.apiKey != ""
}

type pointForecastRequest struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Model      string   `json:"model"`
	Parameters []string `json:"parameters"`
	Levels     []string `json:"levels"`
	Key        string   `json:"key"`
}

// pointForecastResponse mirrors the provider payload: a data map of parallel
// arrays keyed by "<field>-<level>" plus a timestamps array of equal length.
// Array elements are decoded as any so that non-numeric entries degrade to
// per-field defaults instead of failing the whole parse.
type pointForecastResponse struct {
	Timestamps []int64          `json:"ts"`
	Data       map[string][]any `json:"-"`
}

func (r *pointForecastResponse) UnmarshalJSON(b []byte) error {
	var envelope struct {
		Timestamps []int64                    `json:"ts"`
		Fallback   []int64                    `json:"timestamps"`
		Data       map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}
	r.Timestamps = envelope.Timestamps
	if len(r.Timestamps) == 0 {
		r.Timestamps = envelope.Fallback
	}
	r.Data = make(map[string][]any, len(envelope.Data))
	for k, raw := range envelope.Data {
		var arr []any
		if err := json.Unmarshal(raw, &arr); err != nil {
			// Non-array field: leave absent, mapping falls to defaults.
			continue
		}
		r.Data[k] = arr
	}
	return nil
}

// Fetch issues the point-forecast request and maps the payload. Fails fast
// with ErrUnconfigured when no credential is set.
func (c *PointForecastClient) Fetch(ctx context.Context, coord models.GeoCoordinate, horizonHours int) (models.RawForecast, error) {
	if !c.Configured() {
		return models.RawForecast{}, ErrUnconfigured
	}

	payload := pointForecastRequest{
		Lat:        round6(coord.Lat),
		Lon:        round6(coord.Lon),
		Model:      forecastModel,
		Parameters: surfParameters,
		Levels:     []string{surfaceLevel},
		Key:        c.apiKey,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.RawForecast{}, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, body)
	})
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.RemoteCallsTotal.WithLabelValues("error").Inc()
		observability.RemoteCallDuration.WithLabelValues("error").Observe(duration)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.RawForecast{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return models.RawForecast{}, err
	}
	observability.RemoteCallsTotal.WithLabelValues("success").Inc()
	observability.RemoteCallDuration.WithLabelValues("success").Observe(duration)

	resp := result.(*pointForecastResponse)
	return c.mapResponse(resp, coord, horizonHours, time.Now()), nil
}

func (c *PointForecastClient) doRequest(ctx context.Context, body []byte) (*pointForecastResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var parsed pointForecastResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("parse response: empty data map")
	}
	return &parsed, nil
}
