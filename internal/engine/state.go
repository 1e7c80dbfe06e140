package engine

import (
	"sync"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/geo"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// persistedLocked builds the full state written to storage. Completed tracks
// are shared shallowly since they never change; the current track is deep
// copied and decimated.
func (e *Engine) persistedLocked() core.PersistedState {
	tracks := make([]core.Track, len(e.tracks))
	copy(tracks, e.tracks)

	e.seq++
	state := core.PersistedState{
		Seq:            e.seq,
		Tracks:         tracks,
		LoadedFindings: cloneFindings(e.loaded),
	}
	if e.current != nil {
		t := e.current.Clone()
		thin(&t, e.cfg.DecimateCeiling)
		state.CurrentTrack = &t
	}
	return state
}

// Decimate keeps every Nth coordinate, N = ceil(len/ceiling), when coords is
// longer than ceiling.
func Decimate(coords []core.Coordinate, ceiling int) []core.Coordinate {
	if ceiling <= 0 || len(coords) <= ceiling {
		return coords
	}
	n := (len(coords) + ceiling - 1) / ceiling
	out := make([]core.Coordinate, 0, len(coords)/n+1)
	for i := 0; i < len(coords); i += n {
		out = append(out, coords[i])
	}
	return out
}

// thin decimates t's coordinates and moves each segment start onto the first
// kept point at or after it.
func thin(t *core.Track, ceiling int) {
	if t.RecordedPoints < len(t.Coordinates) {
		t.RecordedPoints = len(t.Coordinates)
	}
	if ceiling <= 0 || len(t.Coordinates) <= ceiling {
		return
	}
	n := (len(t.Coordinates) + ceiling - 1) / ceiling
	t.Coordinates = Decimate(t.Coordinates, ceiling)
	if len(t.SegmentStarts) == 0 {
		return
	}
	starts := make([]int, 0, len(t.SegmentStarts))
	for _, s := range t.SegmentStarts {
		j := (s + n - 1) / n
		if j <= 0 || j >= len(t.Coordinates) || (len(starts) > 0 && starts[len(starts)-1] >= j) {
			continue
		}
		starts = append(starts, j)
	}
	t.SegmentStarts = starts
}

func pathKm(coords []core.Coordinate) float64 {
	return geo.PathLengthMeters(coords) / 1000
}

// trackKm sums the walked distance of each segment of t.
func trackKm(t *core.Track) float64 {
	var km float64
	for _, seg := range t.Segments() {
		km += pathKm(seg)
	}
	return km
}

func normalize(t core.Track) core.Track {
	if t.Coordinates == nil {
		t.Coordinates = []core.Coordinate{}
	}
	if t.Findings == nil {
		t.Findings = []core.Finding{}
	}
	return t
}

func cloneFindings(in []core.Finding) []core.Finding {
	if in == nil {
		return nil
	}
	out := make([]core.Finding, len(in))
	for i, f := range in {
		out[i] = f.Clone()
	}
	return out
}

func copyFix(f *core.Fix) *core.Fix {
	if f == nil {
		return nil
	}
	c := *f
	if f.Altitude != nil {
		c.Altitude = core.Float(*f.Altitude)
	}
	if f.Accuracy != nil {
		c.Accuracy = core.Float(*f.Accuracy)
	}
	if f.Speed != nil {
		c.Speed = core.Float(*f.Speed)
	}
	if f.Heading != nil {
		c.Heading = core.Float(*f.Heading)
	}
	return &c
}

// Snapshot returns a consistent copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		State:          e.state,
		Position:       copyFix(e.position),
		Heading:        e.heading,
		HasHeading:     e.hasHeading,
		LoadedFindings: cloneFindings(e.loaded),
		Tracks:         make([]core.Track, len(e.tracks)),
	}
	for i, t := range e.tracks {
		s.Tracks[i] = t.Clone()
	}
	if e.current != nil {
		t := e.current.Clone()
		s.CurrentTrack = &t
	}
	if e.alert != nil {
		a := *e.alert
		a.Finding = a.Finding.Clone()
		s.Alert = &a
	}
	return s
}

// CurrentTrack returns a copy of the track being recorded.
func (e *Engine) CurrentTrack() (core.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return core.Track{}, false
	}
	return e.current.Clone(), true
}

// Position returns the last known position.
func (e *Engine) Position() (core.Fix, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position == nil {
		return core.Fix{}, false
	}
	return *copyFix(e.position), true
}

// Heading returns the last computed bearing in degrees.
func (e *Engine) Heading() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heading, e.hasHeading
}

// State returns the recording state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsRecording reports whether a session is active and not paused.
func (e *Engine) IsRecording() bool {
	return e.State() == Recording
}

// IsPaused reports whether the session is paused.
func (e *Engine) IsPaused() bool {
	return e.State() == Paused
}

// Alert returns the displayed proximity alert.
func (e *Engine) Alert() (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.alert == nil {
		return Alert{}, false
	}
	a := *e.alert
	a.Finding = a.Finding.Clone()
	return a, true
}

// LoadedFindings returns the findings checked for proximity.
func (e *Engine) LoadedFindings() []core.Finding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneFindings(e.loaded)
}

// Tracks returns copies of the completed tracks.
func (e *Engine) Tracks() []core.Track {
	return e.ExportTracks()
}

// Subscribe registers fn for every event. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(Event)) func() {
	e.obsMu.Lock()
	e.nextObs++
	id := e.nextObs
	e.observers = append(e.observers, observer{id: id, fn: fn})
	e.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.obsMu.Lock()
			defer e.obsMu.Unlock()
			kept := make([]observer, 0, len(e.observers))
			for _, o := range e.observers {
				if o.id != id {
					kept = append(kept, o)
				}
			}
			e.observers = kept
		})
	}
}

func (e *Engine) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.obsMu.RLock()
	observers := e.observers
	e.obsMu.RUnlock()

	for _, ev := range events {
		for _, o := range observers {
			o.fn(ev)
		}
	}
}
