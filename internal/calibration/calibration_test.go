package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

const regionsFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"region": "zhoushan", "waveFactor": 1.2, "windFactor": 0.9, "waveBias": 0.1},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[121.5, 29.5], [123.0, 29.5], [123.0, 30.5], [121.5, 30.5], [121.5, 29.5]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"region": "qingdao", "waveFactor": 0.8, "windFactor": 1.1},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[119.8, 35.5], [121.0, 35.5], [121.0, 36.5], [119.8, 36.5], [119.8, 35.5]]]
      }
    }
  ]
}`

func writeRegions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.geojson")
	if err := os.WriteFile(path, []byte(regionsFixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func remoteRaw() models.RawForecast {
	return models.RawForecast{
		Marine: &models.MarineConditions{
			WaveHeight: 1.0, SwellHeight: 0.5, WindSpeed: 10, WindGust: 12,
		},
		Weather: &models.WeatherConditions{Temperature: 22},
		Ocean:   &models.OceanConditions{},
		Hourly: models.HourlySeries{
			WaveHeight: []float64{1.0, 2.0},
			Swell:      []float64{0.5, 0.6},
			WindSpeed:  []float64{10, 11},
			WindGust:   []float64{12, 13},
		},
		Provenance: models.ProvenanceRemote,
	}
}

// TestGeoJSONRegionSource_Lookup verifies point-in-region resolution.
func TestGeoJSONRegionSource_Lookup(t *testing.T) {
	source, err := LoadGeoJSONRegions(writeRegions(t))
	if err != nil {
		t.Fatalf("LoadGeoJSONRegions() error = %v", err)
	}
	if source.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", source.Len())
	}

	region, ok, err := source.Lookup(models.GeoCoordinate{Lat: 29.9, Lon: 122.3})
	if err != nil || !ok {
		t.Fatalf("Lookup(zhoushan) = %v, %v, want match", ok, err)
	}
	if region.Name != "zhoushan" || region.WaveFactor != 1.2 {
		t.Errorf("region = %+v, want zhoushan waveFactor 1.2", region)
	}

	_, ok, err = source.Lookup(models.GeoCoordinate{Lat: 24.0, Lon: 118.0})
	if err != nil {
		t.Fatalf("Lookup(open sea) error = %v", err)
	}
	if ok {
		t.Error("Lookup(open sea) matched, want no region")
	}
}

// TestOverlay_Apply verifies factor application and the provenance retag.
func TestOverlay_Apply(t *testing.T) {
	source, err := LoadGeoJSONRegions(writeRegions(t))
	if err != nil {
		t.Fatalf("LoadGeoJSONRegions() error = %v", err)
	}
	overlay := NewOverlay(source, nil)

	got := overlay.Apply(remoteRaw(), models.GeoCoordinate{Lat: 29.9, Lon: 122.3}, time.Now())
	if got.Provenance != models.ProvenanceCalibrated {
		t.Errorf("Provenance = %q, want remote+calibrated", got.Provenance)
	}
	// 1.0*1.2 + 0.1
	if got.Marine.WaveHeight < 1.29 || got.Marine.WaveHeight > 1.31 {
		t.Errorf("WaveHeight = %v, want 1.3", got.Marine.WaveHeight)
	}
	if got.Marine.WindSpeed != 9 {
		t.Errorf("WindSpeed = %v, want 9", got.Marine.WindSpeed)
	}
	if got.Hourly.WaveHeight[1] < 2.49 || got.Hourly.WaveHeight[1] > 2.51 {
		t.Errorf("hourly wave = %v, want 2.5", got.Hourly.WaveHeight[1])
	}
}

// TestOverlay_Apply_NoRegion verifies the unmatched passthrough.
func TestOverlay_Apply_NoRegion(t *testing.T) {
	source, err := LoadGeoJSONRegions(writeRegions(t))
	if err != nil {
		t.Fatalf("LoadGeoJSONRegions() error = %v", err)
	}
	overlay := NewOverlay(source, nil)

	in := remoteRaw()
	got := overlay.Apply(in, models.GeoCoordinate{Lat: 24.0, Lon: 118.0}, time.Now())
	if got.Provenance != models.ProvenanceRemote {
		t.Errorf("Provenance = %q, want remote", got.Provenance)
	}
	if got.Marine.WaveHeight != in.Marine.WaveHeight {
		t.Errorf("WaveHeight changed without a region match")
	}
}

type failingSource struct{}

func (failingSource) Lookup(models.GeoCoordinate) (Region, bool, error) {
	return Region{}, false, errors.New("regional dataset unavailable")
}

// TestOverlay_Apply_SourceError verifies that a failed lookup returns the
// input unchanged rather than an error.
func TestOverlay_Apply_SourceError(t *testing.T) {
	overlay := NewOverlay(failingSource{}, nil)

	in := remoteRaw()
	got := overlay.Apply(in, models.GeoCoordinate{Lat: 29.9, Lon: 122.3}, time.Now())
	if got.Provenance != models.ProvenanceRemote {
		t.Errorf("Provenance = %q, want remote after lookup failure", got.Provenance)
	}
	if got.Marine.WaveHeight != in.Marine.WaveHeight {
		t.Error("forecast mutated after lookup failure")
	}
}

// TestOverlay_NilSource verifies the passthrough when no regional data is
// configured.
func TestOverlay_NilSource(t *testing.T) {
	overlay := NewOverlay(nil, nil)
	in := remoteRaw()
	got := overlay.Apply(in, models.GeoCoordinate{Lat: 29.9, Lon: 122.3}, time.Now())
	if got.Provenance != models.ProvenanceRemote {
		t.Errorf("Provenance = %q, want remote", got.Provenance)
	}
}
