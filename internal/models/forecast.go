package models

import (
	"fmt"
	"time"
)

// Regional bounding box for supported coordinates (China coastal waters).
const (
	MinLatitude  = 18.0
	MaxLatitude  = 54.0
	MinLongitude = 73.0
	MaxLongitude = 135.0
)

// GeoCoordinate is a point in degrees. Only coordinates inside the regional
// bounding box are accepted by the pipeline.
type GeoCoordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies inside the supported region.
func (c GeoCoordinate) Valid() bool {
	return c.Lat >= MinLatitude && c.Lat <= MaxLatitude &&
		c.Lon >= MinLongitude && c.Lon <= MaxLongitude
}

// ForecastKey derives the cache key for a coordinate and calendar date.
// Coordinates are rounded to 4 decimal places and the hour of day is
// discarded, so requests for the same place on the same day collide.
func ForecastKey(c GeoCoordinate, date time.Time) string {
	return fmt.Sprintf("%.4f_%.4f_%s", c.Lat, c.Lon, date.Format("2006-01-02"))
}

// Provenance tags where a forecast came from.
type Provenance string

const (
	ProvenanceRemote     Provenance = "remote"
	ProvenanceCalibrated Provenance = "remote+calibrated"
	ProvenanceSimulated  Provenance = "simulated"
)

// TideType is the kind of tide event.
type TideType string

const (
	TideHigh TideType = "high"
	TideLow  TideType = "low"
)

// TideEvent is one entry of the daily tide schedule.
type TideEvent struct {
	Time   string   `json:"time"` // "HH:MM"
	Type   TideType `json:"type"`
	Height float64  `json:"height"`
}

// MarineConditions holds wave, swell and wind fields. Wind speeds are knots.
type MarineConditions struct {
	WaveHeight     float64 `json:"waveHeight"`
	WavePeriod     float64 `json:"wavePeriod"`
	WaveDirection  float64 `json:"waveDirection"`
	SwellHeight    float64 `json:"swellHeight"`
	SwellPeriod    float64 `json:"swellPeriod"`
	SwellDirection float64 `json:"swellDirection"`
	WindSpeed      float64 `json:"windSpeed"`
	WindDirection  float64 `json:"windDirection"`
	WindGust       float64 `json:"windGust"`
}

// WeatherConditions holds atmospheric fields.
type WeatherConditions struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Visibility  float64 `json:"visibility"`
	CloudCover  float64 `json:"cloudCover"`
	Condition   string  `json:"condition"`
}

// OceanConditions holds sea-surface fields. TideLevel is one of
// low/rising/high/falling; SeaState is the 1-6 Douglas-style level.
type OceanConditions struct {
	WaterTemperature float64 `json:"waterTemperature"`
	TideHeight       float64 `json:"tideHeight"`
	TideLevel        string  `json:"tideLevel"`
	CurrentSpeed     float64 `json:"currentSpeed"`
	CurrentDirection float64 `json:"currentDirection"`
	SeaState         int     `json:"seaState"`
}

// HourlySeries holds up to 24 hourly points per field. All slices are kept
// at equal length.
type HourlySeries struct {
	WaveHeight    []float64 `json:"waveHeight"`
	WindWave      []float64 `json:"windWave"`
	Swell         []float64 `json:"swell"`
	WindSpeed     []float64 `json:"windSpeed"`
	WindGust      []float64 `json:"windGust"`
	WindDirection []float64 `json:"windDirection"`
	TideHeight    []float64 `json:"tideHeight"`
	Temperature   []float64 `json:"temperature"`
	Pressure      []float64 `json:"pressure"`
}

// Len returns the common length of the hourly arrays.
func (h HourlySeries) Len() int {
	return len(h.WaveHeight)
}

// RawForecast is the pre-validation shape produced by the remote client or
// the synthetic generator. Section pointers let the validator distinguish a
// structurally broken mapping (nil section) from bad field values.
type RawForecast struct {
	Marine       *MarineConditions
	Weather      *WeatherConditions
	Ocean        *OceanConditions
	Hourly       HourlySeries
	TideSchedule []TideEvent
	Provenance   Provenance
	GeneratedAt  time.Time
}

// Forecast is the canonical output shape of the pipeline. Values are
// immutable once produced; the cache replaces entries, never mutates them.
type Forecast struct {
	Marine       MarineConditions  `json:"marine"`
	Weather      WeatherConditions `json:"weather"`
	Ocean        OceanConditions   `json:"ocean"`
	Hourly       HourlySeries      `json:"hourly"`
	TideSchedule []TideEvent       `json:"tideSchedule"`
	Provenance   Provenance        `json:"provenance"`
	GeneratedAt  time.Time         `json:"generatedAt"`
}

// Spot is a named surf location.
type Spot struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Region     string        `json:"region"`
	Coordinate GeoCoordinate `json:"coordinate"`
}

// SeaState maps wave height in meters to a 1-6 sea state level.
func SeaState(waveHeight float64) int {
	switch {
	case waveHeight < 0.5:
		return 1
	case waveHeight < 1.0:
		return 2
	case waveHeight < 2.0:
		return 3
	case waveHeight < 3.0:
		return 4
	case waveHeight < 4.0:
		return 5
	default:
		return 6
	}
}

// IsWinterMonth reports whether m falls in the Nov-Feb winter band used for
// seasonal adjustments.
func IsWinterMonth(m time.Month) bool {
	return m >= time.November || m <= time.February
}
