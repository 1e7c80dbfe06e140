package geo

import (
	"errors"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// ErrEmptyPath is returned when a geometry is requested for no coordinates.
var ErrEmptyPath = errors.New("path has no coordinates")

// PathGeoJSON encodes coords as a GeoJSON geometry in lon/lat order.
// A single coordinate becomes a Point, longer paths a LineString.
func PathGeoJSON(coords []core.Coordinate) ([]byte, error) {
	switch len(coords) {
	case 0:
		return nil, ErrEmptyPath
	case 1:
		pt, err := geom.NewPoint(geom.Coordinates{
			XY:   geom.XY{X: coords[0].Lng, Y: coords[0].Lat},
			Type: geom.DimXY,
		})
		if err != nil {
			return nil, err
		}
		return pt.MarshalJSON()
	}

	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c.Lng, c.Lat)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return nil, err
	}
	return ls.MarshalJSON()
}

// WebMercator projects c from EPSG:4326 to EPSG:3857 meters.
func WebMercator(c core.Coordinate) (x, y float64) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ = f(c.Lng, c.Lat, 0)
	return x, y
}
