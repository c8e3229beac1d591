package calibration

import (
	"fmt"
	"os"

	"github.com/dhconnelly/rtreego"
	geojson "github.com/paulmach/go.geojson"

	"github.com/surfwatch/marine-forecast-service/internal/models"
)

// indexedRegion is a Region plus its bounding rectangle in the R-tree.
type indexedRegion struct {
	region Region
	rect   *rtreego.Rect
}

func (r *indexedRegion) Bounds() *rtreego.Rect { return r.rect }

// GeoJSONRegionSource loads calibration regions from a GeoJSON
// FeatureCollection and answers point lookups through an R-tree of the
// feature bounding boxes. Features carry waveFactor/windFactor/waveBias
// properties; polygon geometry beyond the bounding box is ignored.
type GeoJSONRegionSource struct {
	tree *rtreego.Rtree
}

// LoadGeoJSONRegions reads a FeatureCollection from path and builds the
// spatial index.
func LoadGeoJSONRegions(path string) (*GeoJSONRegionSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration regions: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse calibration regions: %w", err)
	}

	tree := rtreego.NewTree(2, 2, 8)
	for _, f := range fc.Features {
		region, rect, err := featureToRegion(f)
		if err != nil {
			return nil, err
		}
		tree.Insert(&indexedRegion{region: region, rect: rect})
	}
	return &GeoJSONRegionSource{tree: tree}, nil
}

// Lookup implements RegionSource. When several regions overlap a point, the
// first match wins.
func (s *GeoJSONRegionSource) Lookup(coord models.GeoCoordinate) (Region, bool, error) {
	point := rtreego.Point{coord.Lon, coord.Lat}
	rect, err := rtreego.NewRect(point, []float64{1e-9, 1e-9})
	if err != nil {
		return Region{}, false, fmt.Errorf("build query rect: %w", err)
	}
	matches := s.tree.SearchIntersect(rect)
	if len(matches) == 0 {
		return Region{}, false, nil
	}
	hit := matches[0].(*indexedRegion)
	return hit.region, true, nil
}

// Len returns the number of indexed regions.
func (s *GeoJSONRegionSource) Len() int { return s.tree.Size() }

func featureToRegion(f *geojson.Feature) (Region, *rtreego.Rect, error) {
	name, _ := f.PropertyString("region")
	region := Region{
		Name:       name,
		WaveFactor: propertyFloat(f, "waveFactor", 1.0),
		WindFactor: propertyFloat(f, "windFactor", 1.0),
		WaveBias:   propertyFloat(f, "waveBias", 0),
	}

	if f.Geometry == nil || !f.Geometry.IsPolygon() || len(f.Geometry.Polygon) == 0 {
		return Region{}, nil, fmt.Errorf("calibration region %q: polygon geometry required", name)
	}
	minLon, minLat := f.Geometry.Polygon[0][0][0], f.Geometry.Polygon[0][0][1]
	maxLon, maxLat := minLon, minLat
	for _, p := range f.Geometry.Polygon[0] {
		lon, lat := p[0], p[1]
		if lon < minLon {
			minLon = lon
		}
		if lon > maxLon {
			maxLon = lon
		}
		if lat < minLat {
			minLat = lat
		}
		if lat > maxLat {
			maxLat = lat
		}
	}
	rect, err := rtreego.NewRect(rtreego.Point{minLon, minLat}, []float64{maxLon - minLon, maxLat - minLat})
	if err != nil {
		return Region{}, nil, fmt.Errorf("calibration region %q: %w", name, err)
	}
	return region, rect, nil
}

func propertyFloat(f *geojson.Feature, key string, def float64) float64 {
	v, err := f.PropertyFloat64(key)
	if err != nil {
		return def
	}
	return v
}
