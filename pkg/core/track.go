// pkg/core/track.go
package core

import (
	"math"
	"time"
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether c is the (0,0) "no fix" sentinel.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Valid reports whether both components are finite and inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Fix is one location sample reported by the device.
type Fix struct {
	Coordinate
	Altitude  *float64  `json:"altitude,omitempty"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the fix carries usable coordinates.
func (f Fix) Valid() bool {
	return !f.IsZero() && f.Coordinate.Valid()
}

// Marker is the first or last fix of a track, kept with its accuracy metadata.
type Marker struct {
	Coordinate
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarkerFromFix copies the position fields of f into a Marker.
func MarkerFromFix(f Fix) *Marker {
	return &Marker{
		Coordinate: f.Coordinate,
		Accuracy:   copyFloat(f.Accuracy),
		Altitude:   copyFloat(f.Altitude),
		Timestamp:  f.Timestamp,
	}
}

// Location is a resolved place name for a track.
type Location struct {
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// Track is one recorded foraging session.
type Track struct {
	ID              string       `json:"id"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         *time.Time   `json:"endTime"`
	Coordinates     []Coordinate `json:"coordinates"`
	Distance        float64      `json:"distance"` // km
	Findings        []Finding    `json:"findings"`
	IsPaused        bool         `json:"isPaused"`
	Location        *Location    `json:"location,omitempty"`
	StartMarker     *Marker      `json:"startMarker,omitempty"`
	EndMarker       *Marker      `json:"endMarker,omitempty"`
	DurationSeconds float64      `json:"duration"`
	AverageSpeed    float64      `json:"avgSpeed"` // km/h
	AverageAltitude *float64     `json:"avgAltitude,omitempty"`
	Altitude        float64      `json:"altitude"`

	// RecordedPoints counts every coordinate appended while recording. It
	// exceeds len(Coordinates) when a saved copy was thinned.
	RecordedPoints int `json:"recordedPoints,omitempty"`
	// SegmentStarts holds the indices in Coordinates that begin a new
	// segment after a pause. The gap into each is not walked distance.
	SegmentStarts []int `json:"segmentStarts,omitempty"`
}

// Active reports whether the track is still being recorded.
func (t *Track) Active() bool {
	return t.EndTime == nil
}

// LastCoordinate returns the most recent coordinate, if any.
func (t *Track) LastCoordinate() (Coordinate, bool) {
	if len(t.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return t.Coordinates[len(t.Coordinates)-1], true
}

// Thinned reports whether Coordinates holds fewer points than were recorded.
func (t *Track) Thinned() bool {
	return t.RecordedPoints > len(t.Coordinates)
}

// Segments splits Coordinates at SegmentStarts. Indices out of range or out
// of order are ignored.
func (t *Track) Segments() [][]Coordinate {
	if len(t.Coordinates) == 0 {
		return nil
	}
	out := make([][]Coordinate, 0, len(t.SegmentStarts)+1)
	from := 0
	for _, s := range t.SegmentStarts {
		if s <= from || s >= len(t.Coordinates) {
			continue
		}
		out = append(out, t.Coordinates[from:s])
		from = s
	}
	return append(out, t.Coordinates[from:])
}

// Clone returns a deep copy of t.
func (t Track) Clone() Track {
	c := t
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	if t.Coordinates != nil {
		c.Coordinates = append([]Coordinate(nil), t.Coordinates...)
	}
	if t.Findings != nil {
		c.Findings = make([]Finding, len(t.Findings))
		for i, f := range t.Findings {
			c.Findings[i] = f.Clone()
		}
	}
	if t.Location != nil {
		loc := *t.Location
		c.Location = &loc
	}
	if t.StartMarker != nil {
		m := *t.StartMarker
		m.Accuracy, m.Altitude = copyFloat(m.Accuracy), copyFloat(m.Altitude)
		c.StartMarker = &m
	}
	if t.EndMarker != nil {
		m := *t.EndMarker
		m.Accuracy, m.Altitude = copyFloat(m.Accuracy), copyFloat(m.Altitude)
		c.EndMarker = &m
	}
	if t.SegmentStarts != nil {
		c.SegmentStarts = append([]int(nil), t.SegmentStarts...)
	}
	c.AverageAltitude = copyFloat(t.AverageAltitude)
	return c
}

// PersistedState is the unit written to durable storage.
type PersistedState struct {
	Tracks         []Track   `json:"tracks"`
	CurrentTrack   *Track    `json:"currentTrack"`
	LoadedFindings []Finding `json:"loadedFindings"`

	// Seq orders snapshots by the time they were taken. It is not stored.
	Seq uint64 `json:"-"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
