package validation

import (
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/observability"
)

// ErrCoordinateOutOfRange is returned for coordinates outside the supported
// regional bounding box.
var ErrCoordinateOutOfRange = errors.New("coordinate outside supported region")

// ErrDateOutOfRange is returned for forecast dates outside [now-24h, now+7d].
var ErrDateOutOfRange = errors.New("date outside forecast window")

// MissingFieldError reports an absent top-level section in a raw forecast.
// This is fatal for the call: it indicates a structurally broken upstream
// mapping, a bug, not bad data.
type MissingFieldError struct {
	Section string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required section: %s", e.Section)
}

// Physical bounds for clamped fields. Raw values outside the wide raw bounds
// are treated the same way: clamped into the canonical range.
const (
	minWaveHeight = 0.1
	maxWaveHeight = 10.0
	minWindSpeed  = 0.0
	maxWindSpeed  = 50.0 // knots
)

// ValidateCoordinate rejects coordinates outside the regional bounding box
// before any other component sees them.
func ValidateCoordinate(c models.GeoCoordinate) error {
	if !c.Valid() {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrCoordinateOutOfRange, c.Lat, c.Lon)
	}
	return nil
}

// ValidateDate rejects forecast dates more than a day in the past or more
// than seven days ahead.
func ValidateDate(date, now time.Time) error {
	if date.Before(now.Add(-24*time.Hour)) || date.After(now.Add(7*24*time.Hour)) {
		return fmt.Errorf("%w: %s", ErrDateOutOfRange, date.Format("2006-01-02"))
	}
	return nil
}

// Validate canonicalizes a raw forecast. Absent sections are fatal; within
// present sections, out-of-range numerics are clamped (each clamp recorded)
// and free text is sanitized against markup injection, since the condition
// string later crosses a rendering boundary.
func Validate(raw models.RawForecast) (models.Forecast, error) {
	if raw.Marine == nil {
		return models.Forecast{}, &MissingFieldError{Section: "marine"}
	}
	if raw.Weather == nil {
		return models.Forecast{}, &MissingFieldError{Section: "weather"}
	}
	if raw.Ocean == nil {
		return models.Forecast{}, &MissingFieldError{Section: "ocean"}
	}

	marine := *raw.Marine
	marine.WaveHeight = clamp(marine.WaveHeight, minWaveHeight, maxWaveHeight, "waveHeight")
	marine.SwellHeight = clamp(marine.SwellHeight, 0, maxWaveHeight, "swellHeight")
	marine.WindSpeed = clamp(marine.WindSpeed, minWindSpeed, maxWindSpeed, "windSpeed")
	marine.WindGust = clamp(marine.WindGust, minWindSpeed, maxWindSpeed*1.2, "windGust")

	weather := *raw.Weather
	weather.Humidity = clamp(weather.Humidity, 0, 100, "humidity")
	weather.CloudCover = clamp(weather.CloudCover, 0, 100, "cloudCover")
	weather.Condition = html.EscapeString(weather.Condition)

	hourly := raw.Hourly
	equalizeHourly(&hourly)
	for i := range hourly.WaveHeight {
		hourly.WaveHeight[i] = clamp(hourly.WaveHeight[i], minWaveHeight, maxWaveHeight, "hourly.waveHeight")
		hourly.WindSpeed[i] = clamp(hourly.WindSpeed[i], minWindSpeed, maxWindSpeed, "hourly.windSpeed")
	}

	generatedAt := raw.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	return models.Forecast{
		Marine:       marine,
		Weather:      weather,
		Ocean:        *raw.Ocean,
		Hourly:       hourly,
		TideSchedule: raw.TideSchedule,
		Provenance:   raw.Provenance,
		GeneratedAt:  generatedAt,
	}, nil
}

// clamp bounds v into [min, max], recording a clamp event when it fires.
func clamp(v, min, max float64, field string) float64 {
	if v < min {
		observability.ClampEventsTotal.WithLabelValues(field).Inc()
		return min
	}
	if v > max {
		observability.ClampEventsTotal.WithLabelValues(field).Inc()
		return max
	}
	return v
}

// equalizeHourly truncates every hourly array to the shortest length so the
// equal-length invariant holds even after a partially degraded mapping.
func equalizeHourly(h *models.HourlySeries) {
	n := len(h.WaveHeight)
	for _, l := range []int{
		len(h.WindWave), len(h.Swell), len(h.WindSpeed), len(h.WindGust),
		len(h.WindDirection), len(h.TideHeight), len(h.Temperature), len(h.Pressure),
	} {
		if l < n {
			n = l
		}
	}
	h.WaveHeight = h.WaveHeight[:n]
	h.WindWave = h.WindWave[:n]
	h.Swell = h.Swell[:n]
	h.WindSpeed = h.WindSpeed[:n]
	h.WindGust = h.WindGust[:n]
	h.WindDirection = h.WindDirection[:n]
	h.TideHeight = h.TideHeight[:n]
	h.Temperature = h.Temperature[:n]
	h.Pressure = h.Pressure[:n]
}
