package tide

import (
	"math/rand"
	"testing"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

func fixedRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// TestSynthesize verifies the four-event alternating schedule and the
// latitude band offset.
func TestSynthesize(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	zhoushan := models.GeoCoordinate{Lat: 29.9, Lon: 122.3}

	schedule, height, level := Synthesize(zhoushan, at, fixedRand())
	if len(schedule) != 4 {
		t.Fatalf("schedule = %d entries, want 4", len(schedule))
	}
	for i := 1; i < len(schedule); i++ {
		if schedule[i].Time < schedule[i-1].Time {
			t.Errorf("schedule not sorted: %q before %q", schedule[i-1].Time, schedule[i].Time)
		}
		if schedule[i].Type == schedule[i-1].Type {
			t.Errorf("schedule does not alternate at %d: %v", i, schedule[i].Type)
		}
	}
	for _, ev := range schedule {
		if ev.Type == models.TideHigh && (ev.Height < 3.2 || ev.Height > 4.0) {
			t.Errorf("high tide height %v outside [3.2, 4.0]", ev.Height)
		}
		if ev.Type == models.TideLow && (ev.Height < 1.1 || ev.Height > 1.7) {
			t.Errorf("low tide height %v outside [1.1, 1.7]", ev.Height)
		}
	}
	if height <= 0 {
		t.Errorf("current height = %v, want positive", height)
	}
	if level == "" {
		t.Error("current level empty")
	}

	// The low latitude band shifts events by one hour.
	south, _, _ := Synthesize(models.GeoCoordinate{Lat: 21.5, Lon: 111.0}, at, fixedRand())
	north, _, _ := Synthesize(models.GeoCoordinate{Lat: 36.1, Lon: 120.5}, at, fixedRand())
	if south[1].Time == north[1].Time {
		t.Error("latitude band offset not applied to schedule times")
	}
}

// TestHeightAtHour verifies the sinusoidal model stays within the
// mean +/- amplitude envelope.
func TestHeightAtHour(t *testing.T) {
	for h := 0; h < 24; h++ {
		got := HeightAtHour(h)
		if got < meanHeight-amplitude || got > meanHeight+amplitude {
			t.Errorf("HeightAtHour(%d) = %v outside envelope", h, got)
		}
	}
	if HeightAtHour(3) != meanHeight+amplitude {
		t.Errorf("HeightAtHour(3) = %v, want peak %v", HeightAtHour(3), meanHeight+amplitude)
	}
}

// TestLevelAtHour verifies the phase mapping across a day.
func TestLevelAtHour(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{hour: 0, want: "low"},
		{hour: 7, want: "rising"},
		{hour: 13, want: "high"},
		{hour: 20, want: "falling"},
	}
	for _, tc := range tests {
		if got := LevelAtHour(tc.hour); got != tc.want {
			t.Errorf("LevelAtHour(%d) = %q, want %q", tc.hour, got, tc.want)
		}
	}
}
