package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

func rawForecast() models.RawForecast {
	return models.RawForecast{
		Marine: &models.MarineConditions{
			WaveHeight: 1.5, WavePeriod: 8, WaveDirection: 180,
			SwellHeight: 0.8, WindSpeed: 12, WindGust: 15,
		},
		Weather: &models.WeatherConditions{
			Temperature: 22, Humidity: 70, Pressure: 1013,
			Visibility: 10, CloudCover: 40, Condition: "few clouds",
		},
		Ocean:       &models.OceanConditions{WaterTemperature: 19, TideHeight: 2.1},
		Provenance:  models.ProvenanceRemote,
		GeneratedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

// TestValidate_MissingSections verifies that an absent top-level section is
// fatal and names the section.
func TestValidate_MissingSections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.RawForecast)
		section string
	}{
		{name: "marine absent", mutate: func(r *models.RawForecast) { r.Marine = nil }, section: "marine"},
		{name: "weather absent", mutate: func(r *models.RawForecast) { r.Weather = nil }, section: "weather"},
		{name: "ocean absent", mutate: func(r *models.RawForecast) { r.Ocean = nil }, section: "ocean"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := rawForecast()
			tc.mutate(&raw)
			_, err := Validate(raw)

			var missingErr *MissingFieldError
			if !errors.As(err, &missingErr) {
				t.Fatalf("Validate() error = %v, want MissingFieldError", err)
			}
			if missingErr.Section != tc.section {
				t.Errorf("Section = %q, want %q", missingErr.Section, tc.section)
			}
		})
	}
}

// TestValidate_Clamping verifies that out-of-range numerics are clamped
// rather than rejected.
func TestValidate_Clamping(t *testing.T) {
	raw := rawForecast()
	raw.Marine.WaveHeight = 25  // clamped to 10
	raw.Marine.WindSpeed = 150  // clamped to 50 (already knots)
	raw.Weather.Humidity = 140  // clamped to 100
	raw.Marine.SwellHeight = -1 // clamped to 0

	got, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Marine.WaveHeight != 10 {
		t.Errorf("WaveHeight = %v, want 10", got.Marine.WaveHeight)
	}
	if got.Marine.WindSpeed != 50 {
		t.Errorf("WindSpeed = %v, want 50", got.Marine.WindSpeed)
	}
	if got.Weather.Humidity != 100 {
		t.Errorf("Humidity = %v, want 100", got.Weather.Humidity)
	}
	if got.Marine.SwellHeight != 0 {
		t.Errorf("SwellHeight = %v, want 0", got.Marine.SwellHeight)
	}
}

// TestValidate_WaveFloor verifies the lower wave height bound.
func TestValidate_WaveFloor(t *testing.T) {
	raw := rawForecast()
	raw.Marine.WaveHeight = 0

	got, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Marine.WaveHeight != 0.1 {
		t.Errorf("WaveHeight = %v, want floor 0.1", got.Marine.WaveHeight)
	}
}

// TestValidate_SanitizesCondition verifies that markup in the condition text
// is escaped before it can cross a rendering boundary.
func TestValidate_SanitizesCondition(t *testing.T) {
	raw := rawForecast()
	raw.Weather.Condition = `<script>alert("x")</script>`

	got, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Weather.Condition == raw.Weather.Condition {
		t.Error("condition not sanitized")
	}
	for _, c := range got.Weather.Condition {
		if c == '<' || c == '>' {
			t.Fatalf("condition still contains markup: %q", got.Weather.Condition)
		}
	}
}

// TestValidate_EqualizesHourly verifies that uneven hourly arrays are
// truncated to a common length.
func TestValidate_EqualizesHourly(t *testing.T) {
	raw := rawForecast()
	raw.Hourly = models.HourlySeries{
		WaveHeight:    []float64{1, 2, 3},
		WindWave:      []float64{1, 2},
		Swell:         []float64{1, 2, 3},
		WindSpeed:     []float64{1, 2, 3},
		WindGust:      []float64{1, 2, 3},
		WindDirection: []float64{1, 2, 3},
		TideHeight:    []float64{1, 2, 3},
		Temperature:   []float64{1, 2, 3},
		Pressure:      []float64{1, 2, 3},
	}

	got, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Hourly.Len() != 2 {
		t.Errorf("hourly length = %d, want 2", got.Hourly.Len())
	}
	if len(got.Hourly.Pressure) != 2 {
		t.Errorf("pressure length = %d, want 2", len(got.Hourly.Pressure))
	}
}

// TestValidateCoordinate verifies the regional bounding box.
func TestValidateCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		coord   models.GeoCoordinate
		wantErr bool
	}{
		{name: "zhoushan", coord: models.GeoCoordinate{Lat: 29.9, Lon: 122.3}, wantErr: false},
		{name: "qingdao", coord: models.GeoCoordinate{Lat: 36.1, Lon: 120.5}, wantErr: false},
		{name: "box corner", coord: models.GeoCoordinate{Lat: 18, Lon: 73}, wantErr: false},
		{name: "south of box", coord: models.GeoCoordinate{Lat: 10, Lon: 120}, wantErr: true},
		{name: "west of box", coord: models.GeoCoordinate{Lat: 30, Lon: 20}, wantErr: true},
		{name: "hawaii", coord: models.GeoCoordinate{Lat: 21.3, Lon: -157.8}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoordinate(tc.coord)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateCoordinate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCoordinateOutOfRange) {
				t.Errorf("error = %v, want ErrCoordinateOutOfRange", err)
			}
		})
	}
}

// TestValidateDate verifies the forecast date window.
func TestValidateDate(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		date    time.Time
		wantErr bool
	}{
		{name: "today", date: now, wantErr: false},
		{name: "six days ahead", date: now.AddDate(0, 0, 6), wantErr: false},
		{name: "eight days ahead", date: now.AddDate(0, 0, 8), wantErr: true},
		{name: "two days ago", date: now.AddDate(0, 0, -2), wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDate(tc.date, now)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateDate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
