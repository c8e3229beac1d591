package calibration

import (
	"time"

	"go.uber.org/zap"

	"github.com/surfwatch/marine-forecast-service/internal/models"
	"github.com/surfwatch/marine-forecast-service/internal/observability"
)

// Region holds locally observed correction factors for one coastal area.
// Factors scale the remote forecast toward conditions measured at shore.
type Region struct {
	Name       string
	WaveFactor float64
	WindFactor float64
	WaveBias   float64
}

// RegionSource resolves the calibration region covering a coordinate.
// Implementations are external collaborators; lookups may fail.
type RegionSource interface {
	Lookup(coord models.GeoCoordinate) (Region, bool, error)
}

// Overlay applies regional corrections to a raw forecast. Calibration is
// strictly best-effort: a failed lookup logs and returns the input
// unchanged, so a calibration failure can never block an otherwise valid
// forecast.
type Overlay struct {
	source RegionSource
	logger *zap.Logger
}

// NewOverlay creates an Overlay. source may be nil, which makes Apply a
// no-op passthrough.
func NewOverlay(source RegionSource, logger *zap.Logger) *Overlay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Overlay{source: source, logger: logger}
}

// Apply adjusts wave and wind fields using the region covering coord.
// Never fails. Successful calibration retags provenance.
func (o *Overlay) Apply(raw models.RawForecast, coord models.GeoCoordinate, date time.Time) models.RawForecast {
	if o.source == nil || raw.Marine == nil {
		return raw
	}

	region, ok, err := o.source.Lookup(coord)
	if err != nil {
		o.logger.Warn("calibration lookup failed, serving uncalibrated",
			zap.Float64("lat", coord.Lat), zap.Float64("lon", coord.Lon), zap.Error(err))
		return raw
	}
	if !ok {
		return raw
	}

	marine := *raw.Marine
	marine.WaveHeight = marine.WaveHeight*region.WaveFactor + region.WaveBias
	marine.SwellHeight = marine.SwellHeight * region.WaveFactor
	marine.WindSpeed = marine.WindSpeed * region.WindFactor
	marine.WindGust = marine.WindGust * region.WindFactor
	raw.Marine = &marine

	hourly := raw.Hourly
	hourly.WaveHeight = scaleAll(hourly.WaveHeight, region.WaveFactor, region.WaveBias)
	hourly.Swell = scaleAll(hourly.Swell, region.WaveFactor, 0)
	hourly.WindSpeed = scaleAll(hourly.WindSpeed, region.WindFactor, 0)
	hourly.WindGust = scaleAll(hourly.WindGust, region.WindFactor, 0)
	raw.Hourly = hourly

	raw.Provenance = models.ProvenanceCalibrated
	observability.CalibrationAppliedTotal.Inc()
	o.logger.Debug("calibration applied",
		zap.String("region", region.Name),
		zap.Float64("waveFactor", region.WaveFactor),
		zap.Float64("windFactor", region.WindFactor))
	return raw
}

func scaleAll(vs []float64, factor, bias float64) []float64 {
	if len(vs) == 0 {
		return vs
	}
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v*factor + bias
	}
	return out
}
