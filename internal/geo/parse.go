package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// CoordinateFromString parses "lat,lng" or "lat,lng,alt" into a coordinate and
// optional altitude.
func CoordinateFromString(s string) (core.Coordinate, *float64, error) {
	parts := splitFields(s)
	if len(parts) < 2 {
		return core.Coordinate{}, nil, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return core.Coordinate{}, nil, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return core.Coordinate{}, nil, ErrInvalidCoordinates
	}
	c := core.Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return core.Coordinate{}, nil, ErrInvalidCoordinates
	}

	var alt *float64
	if len(parts) > 2 && parts[2] != "" {
		v, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return core.Coordinate{}, nil, ErrInvalidCoordinates
		}
		alt = &v
	}
	return c, alt, nil
}

// FixFromString parses "lat,lng[,alt[,accuracy]]" into a Fix with no timestamp.
func FixFromString(s string) (core.Fix, error) {
	c, alt, err := CoordinateFromString(s)
	if err != nil {
		return core.Fix{}, err
	}
	fix := core.Fix{Coordinate: c, Altitude: alt}

	parts := splitFields(s)
	if len(parts) > 3 && parts[3] != "" {
		acc, err := strconv.ParseFloat(parts[3], 64)
		if err != nil || acc < 0 {
			return core.Fix{}, ErrInvalidCoordinates
		}
		fix.Accuracy = &acc
	}
	return fix, nil
}

func splitFields(s string) []string {
	parts := strings.Split(strings.TrimSpace(s), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
