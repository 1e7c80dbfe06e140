package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store/memory"
)

const key = "forage-state"

type recordingDeleter struct {
	deleted []string
	all     int
}

func (d *recordingDeleter) DeleteTrack(_ context.Context, id string) error {
	d.deleted = append(d.deleted, id)
	return nil
}

func (d *recordingDeleter) DeleteAllTracks(context.Context) error {
	d.all++
	return nil
}

var _ Deleter = (*recordingDeleter)(nil)
var _ Deleter = (*engine.Engine)(nil)

func newStore(t *testing.T, raw string) store.Store {
	t.Helper()
	mem := memory.New("memory", 0)
	if raw != "" {
		require.NoError(t, mem.Write(context.Background(), key, []byte(raw)))
	}
	return store.NewTiered(mem, nil, zerolog.Nop())
}

const persisted = `{
  "tracks": [
    {"id": "older", "startTime": "2024-10-01T08:00:00Z", "coordinates": [{"lat": 44.7001234, "lng": 8.0312345}],
     "location": {"name": "Alba", "region": "Piemonte"}, "findings": []},
    {"id": "broken", "startTime": 42},
    {"startTime": "2024-10-03T08:00:00Z"},
    {"id": "nostart"},
    {"id": "newer", "startTime": "2024-10-05T08:00:00Z", "coordinates": [],
     "findings": [{"id": "f1", "name": "Tuber magnatum", "type": "truffle", "description": "under the oak", "coordinates": {"lat": 44.6, "lng": 8.1}}]}
  ],
  "currentTrack": null,
  "loadedFindings": []
}`

func TestList_SkipsCorruptEntries(t *testing.T) {
	h := New(newStore(t, persisted), key, nil)

	tracks, err := h.List(context.Background())
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "newer", tracks[0].ID)
	assert.Equal(t, "older", tracks[1].ID)
	assert.Equal(t, time.Date(2024, 10, 5, 8, 0, 0, 0, time.UTC), tracks[0].StartTime.UTC())
}

func TestList_Empty(t *testing.T) {
	h := New(newStore(t, ""), key, nil)

	tracks, err := h.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tracks)
}

func TestList_UnreadableState(t *testing.T) {
	h := New(newStore(t, "{not json"), key, nil)

	_, err := h.List(context.Background())
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	h := New(newStore(t, persisted), key, nil)
	ctx := context.Background()

	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"newer", "older"}},
		{"MAGNATUM", []string{"newer"}},
		{"oak", []string{"newer"}},
		{"alba", []string{"older"}},
		{"piemonte", []string{"older"}},
		{"44.7001, 8.0312", []string{"older"}},
		{"porcino", nil},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			tracks, err := h.Search(ctx, tc.query)
			require.NoError(t, err)
			var ids []string
			for _, tr := range tracks {
				ids = append(ids, tr.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestGet(t *testing.T) {
	h := New(newStore(t, persisted), key, nil)

	tr, ok, err := h.Get(context.Background(), "older")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alba", tr.Location.Name)

	_, ok, err = h.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete_Delegates(t *testing.T) {
	d := &recordingDeleter{}
	h := New(newStore(t, persisted), key, d)

	require.NoError(t, h.Delete(context.Background(), "older"))
	require.NoError(t, h.DeleteAll(context.Background()))
	assert.Equal(t, []string{"older"}, d.deleted)
	assert.Equal(t, 1, d.all)

	ro := New(newStore(t, persisted), key, nil)
	assert.ErrorIs(t, ro.Delete(context.Background(), "older"), ErrReadOnly)
	assert.True(t, errors.Is(ro.DeleteAll(context.Background()), ErrReadOnly))
}
