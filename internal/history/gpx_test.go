package history

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

func sampleTrack() core.Track {
	start := time.Date(2024, 10, 12, 7, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	return core.Track{
		ID:          "t1",
		StartTime:   start,
		EndTime:     &end,
		Coordinates: []core.Coordinate{{Lat: 44.7, Lng: 8.03}, {Lat: 44.701, Lng: 8.031}, {Lat: 44.702, Lng: 8.033}},
		Location:    &core.Location{Name: "Alba", Region: "Piemonte"},
		Findings: []core.Finding{{
			ID:          "f1",
			TrackID:     "t1",
			Name:        "Tuber magnatum",
			Type:        core.FindingTruffle,
			Description: "north side of the oak",
			Coordinates: core.Coordinate{Lat: 44.7012, Lng: 8.0311},
			Altitude:    core.Float(312),
			Timestamp:   start.Add(time.Hour),
		}},
	}
}

func TestGPX_RoundTrip(t *testing.T) {
	in := sampleTrack()

	data, err := ExportGPX([]core.Track{in})
	require.NoError(t, err)
	assert.Contains(t, string(data), "<trk>")
	assert.Contains(t, string(data), "<wpt")

	out, err := ImportGPX(data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	got := out[0]

	assert.Equal(t, "t1", got.ID)
	require.Len(t, got.Coordinates, len(in.Coordinates))
	for i, c := range in.Coordinates {
		assert.InDelta(t, c.Lat, got.Coordinates[i].Lat, 1e-7)
		assert.InDelta(t, c.Lng, got.Coordinates[i].Lng, 1e-7)
	}
	assert.True(t, in.StartTime.Equal(got.StartTime))
	require.NotNil(t, got.EndTime)
	assert.True(t, in.EndTime.Equal(*got.EndTime))
	require.NotNil(t, got.Location)
	assert.Equal(t, "Alba", got.Location.Name)

	require.Len(t, got.Findings, 1)
	f := got.Findings[0]
	assert.Equal(t, "Tuber magnatum", f.Name)
	assert.Equal(t, "north side of the oak", f.Description)
	assert.Equal(t, core.FindingTruffle, f.Type)
	assert.Equal(t, "t1", f.TrackID)
	assert.InDelta(t, 44.7012, f.Coordinates.Lat, 1e-7)
	assert.InDelta(t, 8.0311, f.Coordinates.Lng, 1e-7)
	require.NotNil(t, f.Altitude)
	assert.InDelta(t, 312, *f.Altitude, 1e-9)

	assert.InDelta(t, in.Coordinates[0].Lat, got.StartMarker.Lat, 1e-7)
	assert.Greater(t, got.Distance, 0.0)
}

func TestGPX_WaypointsFollowComment(t *testing.T) {
	a := sampleTrack()
	b := sampleTrack()
	b.ID = "t2"
	b.Location = nil
	b.Findings = []core.Finding{{Name: "porcino", Type: core.FindingMushroom, Coordinates: core.Coordinate{Lat: 45, Lng: 9}}}

	data, err := ExportGPX([]core.Track{a, b})
	require.NoError(t, err)

	out, err := ImportGPX(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Len(t, out[0].Findings, 1)
	require.Len(t, out[1].Findings, 1)
	assert.Equal(t, "Tuber magnatum", out[0].Findings[0].Name)
	assert.Equal(t, "porcino", out[1].Findings[0].Name)
	assert.Nil(t, out[1].Location, "a name equal to the id is not a place")
}

func TestImportGPX_MinimalDocument(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="hand">
  <wpt lat="45.0001" lon="9.0001"><name>spot</name><type>stone</type></wpt>
  <trk><trkseg>
    <trkpt lat="45" lon="9"></trkpt>
    <trkpt lat="45.001" lon="9"></trkpt>
  </trkseg></trk>
</gpx>`

	out, err := ImportGPX([]byte(doc))
	require.NoError(t, err)
	require.Len(t, out, 1)
	tr := out[0]
	assert.NotEmpty(t, tr.ID)
	assert.InDelta(t, 0.111, tr.Distance, 0.001)
	require.NotNil(t, tr.EndTime)
	require.Len(t, tr.Findings, 1)
	assert.Equal(t, core.FindingPOI, tr.Findings[0].Type, "unknown types fall back to poi")
	assert.Equal(t, tr.ID, tr.Findings[0].TrackID)
}

func TestImportGPX_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"garbage":   "this is not gpx",
		"no tracks": `<?xml version="1.0"?><gpx version="1.1" creator="x"><wpt lat="1" lon="2"/></gpx>`,
	} {
		t.Run(name, func(t *testing.T) {
			out, err := ImportGPX([]byte(doc))
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrFormatInvalid)
			assert.ErrorIs(t, err, engine.ErrImportFormatInvalid)
		})
	}
}

func TestGPX_TrackWithoutPointsKeepsTimes(t *testing.T) {
	in := sampleTrack()
	in.Coordinates = nil
	bare := sampleTrack()
	bare.ID = "t2"
	bare.Coordinates = nil
	bare.Findings = nil

	data, err := ExportGPX([]core.Track{in, bare})
	require.NoError(t, err)

	out, err := ImportGPX(data)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, got := range out {
		assert.True(t, in.StartTime.Equal(got.StartTime), "track %s start", got.ID)
		require.NotNil(t, got.EndTime)
		assert.True(t, in.EndTime.Equal(*got.EndTime), "track %s end", got.ID)
	}
	assert.Len(t, out[0].Findings, 1)
	assert.InDelta(t, 7200, out[0].DurationSeconds, 1e-6)
}

func TestImportGPX_TimesFromWaypoints(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="hand">
  <wpt lat="45.0001" lon="9.0001"><time>2024-10-12T09:30:00Z</time><name>late</name><cmt>walk</cmt></wpt>
  <wpt lat="45.0002" lon="9.0002"><time>2024-10-12T08:15:00Z</time><name>early</name><cmt>walk</cmt></wpt>
  <trk><cmt>walk</cmt><trkseg></trkseg></trk>
</gpx>`

	out, err := ImportGPX([]byte(doc))
	require.NoError(t, err)
	require.Len(t, out, 1)
	tr := out[0]
	assert.Equal(t, "walk", tr.ID)
	assert.True(t, time.Date(2024, 10, 12, 8, 15, 0, 0, time.UTC).Equal(tr.StartTime))
	require.NotNil(t, tr.EndTime)
	assert.True(t, time.Date(2024, 10, 12, 9, 30, 0, 0, time.UTC).Equal(*tr.EndTime))
	assert.Len(t, tr.Findings, 2)
}

func TestGPX_SegmentsRoundTrip(t *testing.T) {
	in := sampleTrack()
	in.Coordinates = append(in.Coordinates, core.Coordinate{Lat: 44.8, Lng: 8.1}, core.Coordinate{Lat: 44.801, Lng: 8.1})
	in.SegmentStarts = []int{3}

	data, err := ExportGPX([]core.Track{in})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "<trkseg>"))

	out, err := ImportGPX(data)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{3}, out[0].SegmentStarts)
	assert.Len(t, out[0].Coordinates, 5)
	assert.Less(t, out[0].Distance, 1.0, "the gap between segments is not walked")
	require.NotNil(t, out[0].EndTime)
	assert.True(t, in.EndTime.Equal(*out[0].EndTime))
}
