package history

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tkrajina/gpxgo/gpx"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/geo"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// ErrFormatInvalid is returned when imported text is not a usable GPX document.
var ErrFormatInvalid = errors.New("invalid gpx")

const creator = "forage-recorder"

// ExportGPX renders tracks as a GPX 1.1 document. Each track becomes a trk
// whose comment is the track id, with one trkseg per recorded segment; each
// finding becomes a wpt whose comment is the owning track id. Track start and
// end times are also kept in the metadata extensions so tracks without
// points keep them.
func ExportGPX(tracks []core.Track) ([]byte, error) {
	doc := &gpx.GPX{
		Version: "1.1",
		Creator: creator,
	}

	for _, t := range tracks {
		trk := gpx.GPXTrack{
			Name:    trackName(t),
			Comment: t.ID,
		}
		if t.Location != nil {
			trk.Description = t.Location.Region
		}

		segs := t.Segments()
		for si, coords := range segs {
			seg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(coords))}
			for i, c := range coords {
				p := gpx.GPXPoint{Point: gpx.Point{Latitude: c.Lat, Longitude: c.Lng}}
				switch {
				case si == 0 && i == 0:
					p.Timestamp = t.StartTime
					if t.StartMarker != nil && t.StartMarker.Altitude != nil {
						p.Elevation = *gpx.NewNullableFloat64(*t.StartMarker.Altitude)
					}
				case si == len(segs)-1 && i == len(coords)-1 && t.EndTime != nil:
					p.Timestamp = *t.EndTime
					if t.EndMarker != nil && t.EndMarker.Altitude != nil {
						p.Elevation = *gpx.NewNullableFloat64(*t.EndMarker.Altitude)
					}
				}
				seg.Points = append(seg.Points, p)
			}
			trk.Segments = append(trk.Segments, seg)
		}
		if len(trk.Segments) == 0 {
			trk.Segments = []gpx.GPXTrackSegment{{}}
		}
		doc.Tracks = append(doc.Tracks, trk)
		doc.MetadataExtensions.Nodes = append(doc.MetadataExtensions.Nodes, timesNode(t))

		for _, f := range t.Findings {
			wpt := gpx.GPXPoint{
				Point:       gpx.Point{Latitude: f.Coordinates.Lat, Longitude: f.Coordinates.Lng},
				Timestamp:   f.Timestamp,
				Name:        f.Name,
				Description: f.Description,
				Type:        string(f.Type),
				Comment:     t.ID,
			}
			if f.Altitude != nil {
				wpt.Elevation = *gpx.NewNullableFloat64(*f.Altitude)
			}
			doc.Waypoints = append(doc.Waypoints, wpt)
		}
	}

	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gpx: %w", err)
	}
	return out, nil
}

// trackTimes is the start and end of one exported track.
type trackTimes struct {
	start, end time.Time
}

func timesNode(t core.Track) gpx.ExtensionNode {
	leaf := func(name, data string) gpx.ExtensionNode {
		return gpx.ExtensionNode{XMLName: xml.Name{Local: name}, Data: data}
	}
	n := gpx.ExtensionNode{
		XMLName: xml.Name{Local: "track"},
		Nodes:   []gpx.ExtensionNode{leaf("id", t.ID)},
	}
	if !t.StartTime.IsZero() {
		n.Nodes = append(n.Nodes, leaf("start", t.StartTime.UTC().Format(time.RFC3339Nano)))
	}
	if t.EndTime != nil && !t.EndTime.IsZero() {
		n.Nodes = append(n.Nodes, leaf("end", t.EndTime.UTC().Format(time.RFC3339Nano)))
	}
	return n
}

// readTimes collects the track times stored in the metadata extensions.
// Unparseable values are ignored.
func readTimes(ext gpx.Extension) map[string]trackTimes {
	out := make(map[string]trackTimes)
	for i := range ext.Nodes {
		n := &ext.Nodes[i]
		if n.LocalName() != "track" {
			continue
		}
		var id string
		var tt trackTimes
		for j := range n.Nodes {
			c := &n.Nodes[j]
			data := strings.TrimSpace(c.Data)
			switch c.LocalName() {
			case "id":
				id = data
			case "start":
				tt.start, _ = time.Parse(time.RFC3339Nano, data)
			case "end":
				tt.end, _ = time.Parse(time.RFC3339Nano, data)
			}
		}
		if id != "" {
			out[id] = tt
		}
	}
	return out
}

func trackName(t core.Track) string {
	if t.Location != nil && t.Location.Name != "" {
		return t.Location.Name
	}
	return t.ID
}

// ImportGPX parses a GPX document into completed tracks. Missing optional
// fields are tolerated and missing ids are generated. Waypoints attach to the
// track named by their comment, or to the only track when there is one.
// Malformed input or a document without tracks returns an import error
// wrapping ErrFormatInvalid.
func ImportGPX(data []byte) ([]core.Track, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, engine.NewImportError(fmt.Errorf("%w: %v", ErrFormatInvalid, err))
	}
	if len(doc.Tracks) == 0 {
		return nil, engine.NewImportError(fmt.Errorf("%w: no tracks", ErrFormatInvalid))
	}

	times := readTimes(doc.MetadataExtensions)
	tracks := make([]core.Track, 0, len(doc.Tracks))
	byID := make(map[string]int, len(doc.Tracks))
	for _, trk := range doc.Tracks {
		t := trackFromGPX(trk, times)
		if _, dup := byID[t.ID]; dup {
			t.ID = uuid.NewString()
		}
		byID[t.ID] = len(tracks)
		tracks = append(tracks, t)
	}

	for _, wpt := range doc.Waypoints {
		idx, ok := byID[strings.TrimSpace(wpt.Comment)]
		if !ok {
			if len(tracks) != 1 {
				continue
			}
			idx = 0
		}
		tracks[idx].Findings = append(tracks[idx].Findings, findingFromGPX(wpt, tracks[idx].ID))
	}
	for i := range tracks {
		summarize(&tracks[i])
	}
	return tracks, nil
}

func trackFromGPX(trk gpx.GPXTrack, times map[string]trackTimes) core.Track {
	id := strings.TrimSpace(trk.Comment)
	stored, hasStored := times[id]
	if id == "" {
		id = uuid.NewString()
		hasStored = false
	}
	t := core.Track{
		ID:          id,
		Coordinates: []core.Coordinate{},
		Findings:    []core.Finding{},
	}
	if name := strings.TrimSpace(trk.Name); name != "" && name != id {
		t.Location = &core.Location{Name: name, Region: strings.TrimSpace(trk.Description)}
	}

	var first, last *gpx.GPXPoint
	for si := range trk.Segments {
		points := trk.Segments[si].Points
		opened := false
		for pi := range points {
			p := &points[pi]
			c := core.Coordinate{Lat: p.Latitude, Lng: p.Longitude}
			if !c.Valid() || c.IsZero() {
				continue
			}
			if !opened && len(t.Coordinates) > 0 {
				t.SegmentStarts = append(t.SegmentStarts, len(t.Coordinates))
			}
			opened = true
			t.Coordinates = append(t.Coordinates, c)
			if first == nil {
				first = p
			}
			last = p
		}
	}

	if first != nil {
		t.StartTime = first.Timestamp
		t.StartMarker = markerFromGPX(first)
	}
	if last != nil {
		t.EndMarker = markerFromGPX(last)
		if !last.Timestamp.IsZero() {
			end := last.Timestamp
			t.EndTime = &end
		}
	}
	if hasStored && !stored.start.IsZero() {
		t.StartTime = stored.start
	}
	if hasStored && !stored.end.IsZero() {
		end := stored.end
		t.EndTime = &end
	}
	return t
}

// summarize fills times still missing from the findings' timestamps, then
// derives duration, distance and speed.
func summarize(t *core.Track) {
	var earliest, latest time.Time
	for _, f := range t.Findings {
		if f.Timestamp.IsZero() {
			continue
		}
		if earliest.IsZero() || f.Timestamp.Before(earliest) {
			earliest = f.Timestamp
		}
		if f.Timestamp.After(latest) {
			latest = f.Timestamp
		}
	}
	if t.StartTime.IsZero() {
		t.StartTime = earliest
	}
	if t.EndTime == nil && !latest.IsZero() {
		end := latest
		t.EndTime = &end
	}
	if t.EndTime == nil {
		end := t.StartTime
		t.EndTime = &end
	}
	t.DurationSeconds = t.EndTime.Sub(t.StartTime).Seconds()
	for _, seg := range t.Segments() {
		t.Distance += geo.PathLengthMeters(seg) / 1000
	}
	if t.DurationSeconds > 0 {
		t.AverageSpeed = t.Distance / (t.DurationSeconds / 3600)
	}
}

func markerFromGPX(p *gpx.GPXPoint) *core.Marker {
	m := &core.Marker{
		Coordinate: core.Coordinate{Lat: p.Latitude, Lng: p.Longitude},
		Timestamp:  p.Timestamp,
	}
	if p.Elevation.NotNull() {
		m.Altitude = core.Float(p.Elevation.Value())
	}
	return m
}

func findingFromGPX(p gpx.GPXPoint, trackID string) core.Finding {
	ft, err := core.ParseFindingType(p.Type)
	if err != nil {
		ft = core.FindingPOI
	}
	f := core.Finding{
		ID:          uuid.NewString(),
		TrackID:     trackID,
		Name:        strings.TrimSpace(p.Name),
		Type:        ft,
		Description: strings.TrimSpace(p.Description),
		Coordinates: core.Coordinate{Lat: p.Latitude, Lng: p.Longitude},
		Timestamp:   p.Timestamp,
	}
	if p.Elevation.NotNull() {
		f.Altitude = core.Float(p.Elevation.Value())
	}
	return f
}
