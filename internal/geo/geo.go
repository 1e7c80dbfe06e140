package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between a and b in meters.
func DistanceMeters(a, b core.Coordinate) float64 {
	if a == b {
		return 0
	}
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// BearingDegrees returns the initial compass bearing from a to b in [0, 360).
// The result is meaningless when a == b; callers skip that case.
func BearingDegrees(a, b core.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)

	deg := math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	// Mod can round -0.0000001+360 up to exactly 360.
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// IsWithin reports whether a and b are at most thresholdMeters apart.
func IsWithin(a, b core.Coordinate, thresholdMeters float64) bool {
	return DistanceMeters(a, b) <= thresholdMeters
}

// PathLengthMeters sums the distance over consecutive coordinate pairs.
func PathLengthMeters(coords []core.Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += DistanceMeters(coords[i-1], coords[i])
	}
	return total
}
