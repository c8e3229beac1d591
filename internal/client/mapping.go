package client

import (
	"math"
	"strconv"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/tide"
)

// Provider data keys. Wave fields carry no level suffix; the rest are
// keyed "<field>-surface".
const (
	keyWaveHeight     = "waves-height"
	keyWavePeriod     = "waves-period"
	keyWaveDirection  = "waves-direction"
	keySwellHeight    = "waves-swell"
	keySwellPeriod    = "waves-swellPeriod"
	keySwellDirection = "waves-swellDirection"
	keyWind           = "wind-surface"
	keyWindDirection  = "winddir-surface"
	keyGust           = "gust-surface"
	keyTemperature    = "temp-surface"
	keyHumidity       = "rh-surface"
	keyPressure       = "pressure-surface"
	keyVisibility     = "visibility-surface"
	keyCloudCover     = "cloudcover-surface"
)

// Per-field defaults applied when an upstream entry is missing, non-numeric,
// or out of bounds. Wind and gust defaults are in the provider's native m/s.
const (
	defWaveHeight     = 1.0
	defWavePeriod     = 8.0
	defWaveDirection  = 180.0
	defSwellHeight    = 0.8
	defSwellPeriod    = 10.0
	defSwellDirection = 180.0
	defWindSpeed      = 10.0
	defWindDirection  = 180.0
	defWindGust       = 12.0
	defTemperature    = 20.0
	defHumidity       = 70.0
	defPressure       = 1013.0
	defVisibility     = 10.0
	defCloudCover     = 50.0
)

// metersPerSecondToKnots converts the provider's native wind unit.
const metersPerSecondToKnots = 1.94384

const maxHourlyPoints = 24

// safeIndex returns the numeric value at arr[i], or def when the entry is
// missing, out of bounds, or not a number.
func safeIndex(arr []any, i int, def float64) float64 {
	if i < 0 || i >= len(arr) || arr[i] == nil {
		return def
	}
	switch v := arr[i].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return def
		}
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return def
		}
		return f
	default:
		return def
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// currentConditions holds the index-0 sample of every field, pre-conversion
// for wind (already knots) post-conversion.
type currentConditions struct {
	waveHeight, wavePeriod, waveDirection    float64
	swellHeight, swellPeriod, swellDirection float64
	windSpeed, windDirection, windGust       float64
	temperature, humidity, pressure          float64
	visibility, cloudCover                   float64
}

func extractCurrent(data map[string][]any) currentConditions {
	return currentConditions{
		waveHeight:     safeIndex(data[keyWaveHeight], 0, defWaveHeight),
		wavePeriod:     safeIndex(data[keyWavePeriod], 0, defWavePeriod),
		waveDirection:  safeIndex(data[keyWaveDirection], 0, defWaveDirection),
		swellHeight:    safeIndex(data[keySwellHeight], 0, defSwellHeight),
		swellPeriod:    safeIndex(data[keySwellPeriod], 0, defSwellPeriod),
		swellDirection: safeIndex(data[keySwellDirection], 0, defSwellDirection),
		windSpeed:      safeIndex(data[keyWind], 0, defWindSpeed) * metersPerSecondToKnots,
		windDirection:  safeIndex(data[keyWindDirection], 0, defWindDirection),
		windGust:       safeIndex(data[keyGust], 0, defWindGust) * metersPerSecondToKnots,
		temperature:    safeIndex(data[keyTemperature], 0, defTemperature),
		humidity:       safeIndex(data[keyHumidity], 0, defHumidity),
		pressure:       safeIndex(data[keyPressure], 0, defPressure),
		visibility:     safeIndex(data[keyVisibility], 0, defVisibility),
		cloudCover:     safeIndex(data[keyCloudCover], 0, defCloudCover),
	}
}

func extractHourly(data map[string][]any, points int) models.HourlySeries {
	if points > maxHourlyPoints {
		points = maxHourlyPoints
	}
	h := models.HourlySeries{
		WaveHeight:    make([]float64, 0, points),
		WindWave:      make([]float64, 0, points),
		Swell:         make([]float64, 0, points),
		WindSpeed:     make([]float64, 0, points),
		WindGust:      make([]float64, 0, points),
		WindDirection: make([]float64, 0, points),
		TideHeight:    make([]float64, 0, points),
		Temperature:   make([]float64, 0, points),
		Pressure:      make([]float64, 0, points),
	}
	for i := 0; i < points; i++ {
		waveHeight := safeIndex(data[keyWaveHeight], i, defWaveHeight)
		swellHeight := safeIndex(data[keySwellHeight], i, defSwellHeight)
		windWave := math.Max(0, waveHeight-swellHeight)

		h.WaveHeight = append(h.WaveHeight, round1(waveHeight))
		h.WindWave = append(h.WindWave, round1(windWave))
		h.Swell = append(h.Swell, round1(swellHeight))
		h.WindSpeed = append(h.WindSpeed, round1(safeIndex(data[keyWind], i, defWindSpeed)*metersPerSecondToKnots))
		h.WindGust = append(h.WindGust, round1(safeIndex(data[keyGust], i, defWindGust)*metersPerSecondToKnots))
		h.WindDirection = append(h.WindDirection, math.Round(safeIndex(data[keyWindDirection], i, defWindDirection)))
		h.TideHeight = append(h.TideHeight, round1(tide.HeightAtHour(i)))
		h.Temperature = append(h.Temperature, round1(safeIndex(data[keyTemperature], i, defTemperature)))
		h.Pressure = append(h.Pressure, math.Round(safeIndex(data[keyPressure], i, defPressure)))
	}
	return h
}

// estimateWaterTemperature derives sea-water temperature from air
// temperature; the provider does not supply it. The offset widens in winter
// and the estimate is floored at 5 degrees.
func estimateWaterTemperature(airTemp float64, month time.Month) float64 {
	offset := 3.0
	if models.IsWinterMonth(month) {
		offset = 5.0
	}
	return math.Max(5, airTemp-offset)
}

// weatherCondition derives a short textual condition from visibility and
// cloud cover.
func weatherCondition(visibility, cloudCover float64) string {
	switch {
	case visibility < 5:
		return "fog"
	case cloudCover < 20:
		return "clear"
	case cloudCover < 50:
		return "few clouds"
	case cloudCover < 80:
		return "partly cloudy"
	default:
		return "overcast"
	}
}

func (c *PointForecastClient) mapResponse(resp *pointForecastResponse, coord models.GeoCoordinate, horizonHours int, now time.Time) models.RawForecast {
	cur := extractCurrent(resp.Data)

	points := len(resp.Timestamps)
	if points == 0 {
		points = horizonHours
	}
	if points > maxHourlyPoints {
		points = maxHourlyPoints
	}

	schedule, tideHeight, tideLevel := tide.Synthesize(coord, now, c.rnd)

	return models.RawForecast{
		Marine: &models.MarineConditions{
			WaveHeight:     cur.waveHeight,
			WavePeriod:     cur.wavePeriod,
			WaveDirection:  cur.waveDirection,
			SwellHeight:    cur.swellHeight,
			SwellPeriod:    cur.swellPeriod,
			SwellDirection: cur.swellDirection,
			WindSpeed:      cur.windSpeed,
			WindDirection:  cur.windDirection,
			WindGust:       cur.windGust,
		},
		Weather: &models.WeatherConditions{
			Temperature: cur.temperature,
			Humidity:    cur.humidity,
			Pressure:    cur.pressure,
			Visibility:  cur.visibility,
			CloudCover:  cur.cloudCover,
			Condition:   weatherCondition(cur.visibility, cur.cloudCover),
		},
		Ocean: &models.OceanConditions{
			WaterTemperature: estimateWaterTemperature(cur.temperature, now.Month()),
			TideHeight:       tideHeight,
			TideLevel:        tideLevel,
			CurrentSpeed:     0.5,
			CurrentDirection: 90,
			SeaState:         models.SeaState(cur.waveHeight),
		},
		Hourly:       extractHourly(resp.Data, points),
		TideSchedule: schedule,
		Provenance:   models.ProvenanceRemote,
		GeneratedAt:  now,
	}
}
