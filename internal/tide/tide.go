package tide

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

// No real tide feed exists in this system's scope, so tides are synthesized
// sinusoidally around a mean level with four events per day. The synthetic
// tide is present regardless of the forecast data source.
const (
	meanHeight   = 2.0
	amplitude    = 1.5
	eventSpacing = 6.2 // hours between consecutive events
)

// HeightAtHour returns the modeled tide height for an hour offset.
func HeightAtHour(hour int) float64 {
	return meanHeight + math.Sin(float64(hour)*math.Pi/6)*amplitude
}

// LevelAtHour maps the hour of day to the tide phase:
// low, rising, high or falling.
func LevelAtHour(hour int) string {
	phase := math.Mod(float64(hour)/6, 4)
	switch {
	case phase < 1:
		return "low"
	case phase < 2:
		return "rising"
	case phase < 3:
		return "high"
	default:
		return "falling"
	}
}

// Synthesize produces the daily tide schedule plus the current height and
// phase. Four events alternate high/low at ~6.2 hour spacing, offset by
// latitude band; event heights carry a small random spread from rnd.
func Synthesize(coord models.GeoCoordinate, at time.Time, rnd *rand.Rand) ([]models.TideEvent, float64, string) {
	baseOffset := 1.0
	if coord.Lat > 30 {
		baseOffset = 0.0
	}

	schedule := make([]models.TideEvent, 0, 4)
	for i := 0; i < 4; i++ {
		tideHour := math.Mod(6+baseOffset+float64(i)*eventSpacing, 24)
		isHigh := i%2 == 0

		var height float64
		tideType := models.TideLow
		if isHigh {
			tideType = models.TideHigh
			height = 3.2 + rnd.Float64()*0.8
		} else {
			height = 1.1 + rnd.Float64()*0.6
		}

		schedule = append(schedule, models.TideEvent{
			Time:   fmt.Sprintf("%02d:%02d", int(tideHour), int(math.Mod(tideHour, 1)*60)),
			Type:   tideType,
			Height: math.Round(height*10) / 10,
		})
	}
	sort.Slice(schedule, func(i, j int) bool {
		return schedule[i].Time < schedule[j].Time
	})

	hour := at.Hour()
	return schedule, math.Round(HeightAtHour(hour)*10) / 10, LevelAtHour(hour)
}
