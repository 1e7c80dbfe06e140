// Package history lists, searches and exports completed tracks straight from
// durable storage.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// ErrReadOnly is returned by deletes on a History built without a Deleter.
var ErrReadOnly = errors.New("history is read-only")

// Deleter removes tracks from the state owned by the engine.
type Deleter interface {
	DeleteTrack(ctx context.Context, id string) error
	DeleteAllTracks(ctx context.Context) error
}

// History reads the persisted state under one key.
type History struct {
	store   store.Store
	key     string
	deleter Deleter
}

// New creates a History. deleter may be nil for read-only use.
func New(s store.Store, key string, deleter Deleter) *History {
	return &History{store: s, key: key, deleter: deleter}
}

type rawState struct {
	Tracks []json.RawMessage `json:"tracks"`
}

// List returns completed tracks, newest first. Entries that fail to decode or
// lack an id or start time are skipped.
func (h *History) List(ctx context.Context) ([]core.Track, error) {
	var raw rawState
	ok, err := h.store.Get(ctx, h.key, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if !ok {
		return []core.Track{}, nil
	}

	tracks := make([]core.Track, 0, len(raw.Tracks))
	for _, entry := range raw.Tracks {
		var t core.Track
		if err := json.Unmarshal(entry, &t); err != nil {
			continue
		}
		if t.ID == "" || t.StartTime.IsZero() {
			continue
		}
		tracks = append(tracks, t)
	}
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].StartTime.After(tracks[j].StartTime)
	})
	return tracks, nil
}

// Get returns one track by id.
func (h *History) Get(ctx context.Context, id string) (core.Track, bool, error) {
	tracks, err := h.List(ctx)
	if err != nil {
		return core.Track{}, false, err
	}
	for _, t := range tracks {
		if t.ID == id {
			return t, true, nil
		}
	}
	return core.Track{}, false, nil
}

// Search filters List by a case-insensitive substring. An empty query
// returns every track.
func (h *History) Search(ctx context.Context, query string) ([]core.Track, error) {
	tracks, err := h.List(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return tracks, nil
	}

	out := make([]core.Track, 0, len(tracks))
	for _, t := range tracks {
		if Matches(t, q) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Matches reports whether a lower-cased query occurs in the searchable text
// of t.
func Matches(t core.Track, q string) bool {
	for _, f := range t.Findings {
		if strings.Contains(strings.ToLower(f.Name), q) || strings.Contains(strings.ToLower(f.Description), q) {
			return true
		}
	}
	if t.Location != nil {
		if strings.Contains(strings.ToLower(t.Location.Name), q) || strings.Contains(strings.ToLower(t.Location.Region), q) {
			return true
		}
	}
	if len(t.Coordinates) > 0 {
		c := t.Coordinates[0]
		if strings.Contains(fmt.Sprintf("%.4f, %.4f", c.Lat, c.Lng), q) {
			return true
		}
	}
	return false
}

// Delete removes one track.
func (h *History) Delete(ctx context.Context, id string) error {
	if h.deleter == nil {
		return ErrReadOnly
	}
	return h.deleter.DeleteTrack(ctx, id)
}

// DeleteAll removes every completed track.
func (h *History) DeleteAll(ctx context.Context) error {
	if h.deleter == nil {
		return ErrReadOnly
	}
	return h.deleter.DeleteAllTracks(ctx)
}
