package geo

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

func TestDistanceMeters_OneThousandthDegreeLatitude(t *testing.T) {
	d := DistanceMeters(core.Coordinate{Lat: 45, Lng: 9}, core.Coordinate{Lat: 45.001, Lng: 9})

	if math.Abs(d-111.19) > 0.5 {
		t.Errorf("expected ~111.19m, got %f", d)
	}
}

func TestDistanceMeters_SamePoint(t *testing.T) {
	c := core.Coordinate{Lat: 44.7, Lng: 8.03}
	if d := DistanceMeters(c, c); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	a := core.Coordinate{Lat: 44.7, Lng: 8.03}
	b := core.Coordinate{Lat: 44.71, Lng: 8.05}

	if math.Abs(DistanceMeters(a, b)-DistanceMeters(b, a)) > 1e-9 {
		t.Error("expected distance to be symmetric")
	}
}

func TestBearingDegrees_Cardinal(t *testing.T) {
	origin := core.Coordinate{Lat: 45, Lng: 9}
	tests := []struct {
		name string
		to   core.Coordinate
		want float64
	}{
		{"north", core.Coordinate{Lat: 45.01, Lng: 9}, 0},
		{"east", core.Coordinate{Lat: 45, Lng: 9.01}, 90},
		{"south", core.Coordinate{Lat: 44.99, Lng: 9}, 180},
		{"west", core.Coordinate{Lat: 45, Lng: 8.99}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDegrees(origin, tt.to)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestBearingDegrees_RangeAndReverse(t *testing.T) {
	points := []core.Coordinate{
		{Lat: 45, Lng: 9}, {Lat: 45.003, Lng: 9.002}, {Lat: 44.998, Lng: 9.004},
		{Lat: -33.9, Lng: 18.4}, {Lat: -33.91, Lng: 18.38}, {Lat: 0.5, Lng: -179.9},
	}

	for i := range points {
		for j := range points {
			if i == j {
				continue
			}
			fwd := BearingDegrees(points[i], points[j])
			if fwd < 0 || fwd >= 360 {
				t.Fatalf("bearing %f out of range", fwd)
			}
			if DistanceMeters(points[i], points[j]) > 2000 {
				continue
			}
			back := BearingDegrees(points[j], points[i])
			diff := math.Mod(math.Abs(fwd-back), 360)
			if math.Abs(diff-180) > 0.1 {
				t.Errorf("%v->%v: expected reverse bearing to differ by 180, got %f", points[i], points[j], diff)
			}
		}
	}
}

func TestIsWithin(t *testing.T) {
	a := core.Coordinate{Lat: 45, Lng: 9}
	b := core.Coordinate{Lat: 45.00005, Lng: 9} // ~5.6m

	if !IsWithin(a, b, 10) {
		t.Error("expected points to be within 10m")
	}
	if IsWithin(a, b, 5) {
		t.Error("expected points not to be within 5m")
	}
}

func TestPathLengthMeters_SumOfPairs(t *testing.T) {
	path := []core.Coordinate{
		{Lat: 45, Lng: 9}, {Lat: 45.001, Lng: 9}, {Lat: 45.001, Lng: 9.001}, {Lat: 45.002, Lng: 9.002},
	}

	var want float64
	for i := 1; i < len(path); i++ {
		want += DistanceMeters(path[i-1], path[i])
	}
	if got := PathLengthMeters(path); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if got := PathLengthMeters(path[:1]); got != 0 {
		t.Errorf("expected 0 for a single point, got %f", got)
	}
}

func TestPathGeoJSON(t *testing.T) {
	if _, err := PathGeoJSON(nil); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}

	raw, err := PathGeoJSON([]core.Coordinate{{Lat: 45, Lng: 9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var point struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &point); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if point.Type != "Point" || point.Coordinates[0] != 9 || point.Coordinates[1] != 45 {
		t.Errorf("unexpected point %s", raw)
	}

	raw, err = PathGeoJSON([]core.Coordinate{{Lat: 45, Lng: 9}, {Lat: 45.001, Lng: 9.002}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var line struct {
		Type        string      `json:"type"`
		Coordinates [][]float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &line); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Type != "LineString" || len(line.Coordinates) != 2 {
		t.Fatalf("unexpected line %s", raw)
	}
	if line.Coordinates[1][0] != 9.002 || line.Coordinates[1][1] != 45.001 {
		t.Errorf("expected lon/lat order, got %v", line.Coordinates[1])
	}
}

func TestWebMercator(t *testing.T) {
	x, y := WebMercator(core.Coordinate{})
	if math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
		t.Errorf("expected origin, got %f,%f", x, y)
	}

	x, _ = WebMercator(core.Coordinate{Lat: 0, Lng: 180})
	if math.Abs(x-20037508.34) > 1 {
		t.Errorf("expected antimeridian x=20037508.34, got %f", x)
	}
}

func TestCoordinateFromString(t *testing.T) {
	c, alt, err := CoordinateFromString(" 45.1, 9.2 ,310.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Lat != 45.1 || c.Lng != 9.2 {
		t.Errorf("unexpected coordinate %v", c)
	}
	if alt == nil || *alt != 310.5 {
		t.Errorf("expected altitude 310.5, got %v", alt)
	}

	_, alt, err = CoordinateFromString("45.1,9.2")
	if err != nil || alt != nil {
		t.Errorf("expected no altitude and no error, got %v %v", alt, err)
	}
}

func TestCoordinateFromString_Invalid(t *testing.T) {
	for _, in := range []string{"", "45", "abc,9", "45,xyz", "91,0", "0,181", "45,9,high"} {
		if _, _, err := CoordinateFromString(in); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("%q: expected ErrInvalidCoordinates, got %v", in, err)
		}
	}
}

func TestFixFromString(t *testing.T) {
	fix, err := FixFromString("45,9,300,4.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fix.Accuracy == nil || *fix.Accuracy != 4.5 {
		t.Errorf("expected accuracy 4.5, got %v", fix.Accuracy)
	}
	if !fix.Valid() {
		t.Error("expected fix to be valid")
	}

	if _, err := FixFromString("45,9,300,-1"); !errors.Is(err, ErrInvalidCoordinates) {
		t.Errorf("expected ErrInvalidCoordinates for negative accuracy, got %v", err)
	}
}
