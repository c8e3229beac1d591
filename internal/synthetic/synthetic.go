package synthetic

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/tide"
)

// Generator synthesizes a seasonally and geographically aware forecast.
// It is the terminal fallback of the pipeline: it has no further fallback
// and cannot fail, which is what makes the orchestrator's availability
// guarantee possible.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator creates a Generator. rnd is the seedable source; nil uses a
// time-seeded one.
func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

// baseWaveHeight returns the seasonal baseline for a latitude band. Higher
// latitude and winter months raise the baseline.
func baseWaveHeight(coord models.GeoCoordinate, month time.Month) float64 {
	winter := models.IsWinterMonth(month)
	if coord.Lat > 30 {
		if winter {
			return 1.5
		}
		return 1.0
	}
	if winter {
		return 1.2
	}
	return 0.8
}

// Generate produces a complete raw forecast for the coordinate and date with
// provenance "simulated". Always succeeds.
func (g *Generator) Generate(coord models.GeoCoordinate, date time.Time) models.RawForecast {
	g.mu.Lock()
	defer g.mu.Unlock()

	month := date.Month()
	winter := models.IsWinterMonth(month)
	base := baseWaveHeight(coord, month)

	waveHeight := math.Max(0.1, base+g.spread(0.6))
	swellHeight := math.Max(0.1, waveHeight*0.7+g.spread(0.2))
	windSpeed := math.Max(5, 10+g.spread(8))
	windGust := windSpeed + 2 + g.rnd.Float64()*3
	temperature := 20 + g.rnd.Float64()*8
	if winter {
		temperature = 15 + g.rnd.Float64()*10
	}
	cloudCover := g.rnd.Float64() * 100
	visibility := 8 + g.rnd.Float64()*4

	hourly := g.hourly(base, winter)
	schedule, tideHeight, tideLevel := tide.Synthesize(coord, date, g.rnd)

	waterOffset := 3.0
	if winter {
		waterOffset = 5.0
	}

	return models.RawForecast{
		Marine: &models.MarineConditions{
			WaveHeight:     round1(waveHeight),
			WavePeriod:     round1(8 + g.rnd.Float64()*4),
			WaveDirection:  math.Round(180 + g.spread(60)),
			SwellHeight:    round1(swellHeight),
			SwellPeriod:    round1(10 + g.rnd.Float64()*3),
			SwellDirection: math.Round(180 + g.spread(60)),
			WindSpeed:      round1(windSpeed),
			WindDirection:  math.Round(180 + g.spread(90)),
			WindGust:       round1(windGust),
		},
		Weather: &models.WeatherConditions{
			Temperature: round1(temperature),
			Humidity:    math.Round(60 + g.rnd.Float64()*30),
			Pressure:    math.Round(1008 + g.rnd.Float64()*10),
			Visibility:  round1(visibility),
			CloudCover:  math.Round(cloudCover),
			Condition:   condition(visibility, cloudCover),
		},
		Ocean: &models.OceanConditions{
			WaterTemperature: round1(math.Max(5, temperature-waterOffset)),
			TideHeight:       tideHeight,
			TideLevel:        tideLevel,
			CurrentSpeed:     0.5,
			CurrentDirection: 90,
			SeaState:         models.SeaState(waveHeight),
		},
		Hourly:       hourly,
		TideSchedule: schedule,
		Provenance:   models.ProvenanceSimulated,
		GeneratedAt:  date,
	}
}

// hourly builds 24 points around the baseline with a bounded perturbation,
// floored so no field bottoms out at zero.
func (g *Generator) hourly(base float64, winter bool) models.HourlySeries {
	const points = 24
	h := models.HourlySeries{
		WaveHeight:    make([]float64, points),
		WindWave:      make([]float64, points),
		Swell:         make([]float64, points),
		WindSpeed:     make([]float64, points),
		WindGust:      make([]float64, points),
		WindDirection: make([]float64, points),
		TideHeight:    make([]float64, points),
		Temperature:   make([]float64, points),
		Pressure:      make([]float64, points),
	}
	baseTemp := 20.0
	if winter {
		baseTemp = 15.0
	}
	for i := 0; i < points; i++ {
		wave := math.Max(0.1, base+g.spread(0.6))
		swell := math.Max(0.1, wave*0.7+g.spread(0.2))
		wind := math.Max(2, 8+g.spread(8))

		h.WaveHeight[i] = round1(wave)
		h.WindWave[i] = round1(math.Max(0, wave-swell))
		h.Swell[i] = round1(swell)
		h.WindSpeed[i] = round1(wind)
		h.WindGust[i] = round1(wind + 2 + g.rnd.Float64()*3)
		h.WindDirection[i] = math.Round(180 + g.spread(90))
		h.TideHeight[i] = round1(tide.HeightAtHour(i))
		h.Temperature[i] = round1(baseTemp + g.spread(4))
		h.Pressure[i] = math.Round(1008 + g.rnd.Float64()*10)
	}
	return h
}

// spread returns a perturbation uniformly distributed in [-width/2, width/2].
func (g *Generator) spread(width float64) float64 {
	return (g.rnd.Float64() - 0.5) * width
}

func condition(visibility, cloudCover float64) string {
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

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
