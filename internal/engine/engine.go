// Package engine turns a stream of location fixes into durable tracks.
//
// The Engine owns all recording state behind one mutex. Observers are called
// after the mutex is released, and persistence goes through a Persister so no
// fix-handling path waits on I/O.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/location"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// LocationSource provides one-shot and continuous fixes.
type LocationSource interface {
	GetOnce(ctx context.Context, opts location.Options) (core.Fix, error)
	Watch(onFix func(core.Fix), onError func(error)) (*location.Subscription, error)
}

// Persister stores full state snapshots.
type Persister interface {
	Load(ctx context.Context) (core.PersistedState, bool, error)
	Submit(state core.PersistedState)
	WriteNow(ctx context.Context, state core.PersistedState) error
}

// Geocoder resolves a coordinate to a place name.
type Geocoder interface {
	Reverse(ctx context.Context, c core.Coordinate) (core.Location, error)
}

// Cue plays and stops the proximity alert sound.
type Cue interface {
	Play()
	Stop()
}

// Dependencies holds all external dependencies for the engine.
type Dependencies struct {
	Location  LocationSource
	Persister Persister
	Geocoder  Geocoder // optional
	Cue       Cue      // optional
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// Config holds the recording thresholds.
type Config struct {
	EnterRadius     float64 // meters, raise an alert at or inside
	ExitRadius      float64 // meters, re-arm an alert beyond
	HeadingMinMove  float64 // meters between fixes before heading updates
	DecimateCeiling int     // max coordinates in the persisted current track
	AutoSaveEvery   int     // accepted fixes per background save
	AcquireTimeout  time.Duration
}

// DefaultConfig returns the observed thresholds.
func DefaultConfig() Config {
	return Config{
		EnterRadius:     10,
		ExitRadius:      15,
		HeadingMinMove:  2,
		DecimateCeiling: 1000,
		AutoSaveEvery:   1,
		AcquireTimeout:  10 * time.Second,
	}
}

// Engine is the track recording state machine.
type Engine struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	stopping bool
	current  *core.Track
	// completed tracks are never mutated in place
	tracks     []core.Track
	loaded     []core.Finding
	alerting   map[string]bool
	alert      *Alert
	muted      bool
	position   *core.Fix
	lastFix    *core.Fix
	heading    float64
	hasHeading bool
	altSum     float64
	altCount   int
	unsaved    int
	// resumed marks that the next recorded fix opens a new segment
	resumed bool
	seq     uint64
	sub     *location.Subscription

	obsMu     sync.RWMutex
	observers []observer
	nextObs   int

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

type observer struct {
	id int
	fn func(Event)
}

// New creates an Engine. Location and Persister are required.
func New(deps Dependencies, cfg Config) (*Engine, error) {
	if deps.Location == nil {
		return nil, errors.New("engine: location source is required")
	}
	if deps.Persister == nil {
		return nil, errors.New("engine: persister is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	def := DefaultConfig()
	if cfg.EnterRadius <= 0 {
		cfg.EnterRadius = def.EnterRadius
	}
	if cfg.ExitRadius < cfg.EnterRadius {
		cfg.ExitRadius = cfg.EnterRadius + (def.ExitRadius - def.EnterRadius)
	}
	if cfg.HeadingMinMove < 0 {
		cfg.HeadingMinMove = def.HeadingMinMove
	}
	if cfg.DecimateCeiling < 2 {
		cfg.DecimateCeiling = def.DecimateCeiling
	}
	if cfg.AutoSaveEvery < 1 {
		cfg.AutoSaveEvery = def.AutoSaveEvery
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = def.AcquireTimeout
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		log:      deps.Logger.With("component", "engine"),
		alerting: make(map[string]bool),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Config returns the effective thresholds.
func (e *Engine) Config() Config {
	return e.cfg
}

// Close cancels the watch and waits for background work.
func (e *Engine) Close() {
	e.mu.Lock()
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()

	sub.Cancel()
	e.bgCancel()
	e.wg.Wait()
}

// Restore loads persisted state. A persisted current track resumes recording
// (or stays paused) with its distance recomputed from its coordinates.
func (e *Engine) Restore(ctx context.Context) error {
	state, ok, err := e.deps.Persister.Load(ctx)
	if err != nil {
		return storageError("restore", err)
	}
	if !ok {
		e.log.Debug("no persisted state")
		return nil
	}

	e.mu.Lock()
	if e.state != Idle || e.stopping {
		e.mu.Unlock()
		return ErrActive
	}

	e.tracks = make([]core.Track, 0, len(state.Tracks))
	for _, t := range state.Tracks {
		if t.ID == "" {
			continue
		}
		e.tracks = append(e.tracks, normalize(t.Clone()))
	}
	e.loaded = cloneFindings(state.LoadedFindings)
	e.alerting = make(map[string]bool)

	resumed := false
	if ct := state.CurrentTrack; ct != nil && ct.ID != "" {
		t := normalize(ct.Clone())
		if t.Thinned() {
			// the saved distance covers points the thinned copy dropped
			e.log.Debug("keeping saved distance of thinned track", "track_id", t.ID, "points", len(t.Coordinates), "recorded", t.RecordedPoints)
		} else {
			t.RecordedPoints = len(t.Coordinates)
			t.Distance = trackKm(&t)
		}
		if t.EndTime != nil {
			// finished but never moved to the list
			e.tracks = append(e.tracks, t)
		} else {
			e.resetSessionLocked()
			e.current = &t
			e.state = Recording
			if t.IsPaused {
				e.state = Paused
			}
			if last, ok := t.LastCoordinate(); ok {
				e.position = &core.Fix{Coordinate: last}
			}
			resumed = true
		}
	}
	st := e.state
	var trackID string
	if e.current != nil {
		trackID = e.current.ID
	}
	e.mu.Unlock()

	e.log.Info("state restored", "tracks", len(state.Tracks), "resumed", resumed, "track_id", trackID)

	events := []Event{{Kind: EventTracksChanged, At: e.deps.Now()}}
	if resumed {
		e.openWatch(trackID)
		events = append(events, Event{Kind: EventStateChanged, State: st, TrackID: trackID, At: e.deps.Now()})
	}
	e.emit(events...)
	return nil
}

// Start begins a new track. It is a no-op returning the current track and
// false when a session is already active.
func (e *Engine) Start(ctx context.Context) (core.Track, bool) {
	e.mu.Lock()
	if e.state != Idle || e.stopping {
		var t core.Track
		if e.current != nil {
			t = e.current.Clone()
		}
		e.mu.Unlock()
		return t, false
	}

	now := e.deps.Now()
	track := &core.Track{
		ID:          e.deps.NewID(),
		StartTime:   now,
		Coordinates: []core.Coordinate{},
		Findings:    []core.Finding{},
	}
	e.resetSessionLocked()
	e.current = track
	e.state = Recording
	snapshot := e.persistedLocked()
	started := track.Clone()
	e.mu.Unlock()

	e.log.InfoContext(ctx, "recording started", "track_id", started.ID)
	e.deps.Persister.Submit(snapshot)
	e.openWatch(started.ID)
	e.resolveLocation(started.ID)
	e.emit(Event{Kind: EventStateChanged, State: Recording, TrackID: started.ID, At: now})
	return started, true
}

func (e *Engine) resetSessionLocked() {
	e.alerting = make(map[string]bool)
	e.alert = nil
	e.muted = false
	e.lastFix = nil
	e.heading = 0
	e.hasHeading = false
	e.altSum = 0
	e.altCount = 0
	e.unsaved = 0
	e.resumed = false
}

func (e *Engine) openWatch(trackID string) {
	sub, err := e.deps.Location.Watch(e.UpdatePosition, e.onWatchError)
	if err != nil {
		e.log.Warn("failed to open location watch", "track_id", trackID, "error", err)
		e.emit(Event{Kind: EventLocationError, TrackID: trackID, Err: locationError("watch", err), At: e.deps.Now()})
		return
	}

	e.mu.Lock()
	if e.current == nil || e.current.ID != trackID || e.stopping {
		e.mu.Unlock()
		sub.Cancel()
		return
	}
	old := e.sub
	e.sub = sub
	e.mu.Unlock()
	old.Cancel()
}

func (e *Engine) onWatchError(err error) {
	e.log.Debug("location watch error", "error", err)
	e.emit(Event{Kind: EventLocationError, Err: locationError("watch", err), At: e.deps.Now()})
}

// resolveLocation fetches an initial position and place name in the
// background and attaches them if trackID is still current.
func (e *Engine) resolveLocation(trackID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		fix, err := e.deps.Location.GetOnce(e.bgCtx, e.acquireOptions())
		if err != nil || !fix.Valid() {
			e.log.Debug("initial position unavailable", "track_id", trackID, "error", err)
			return
		}

		e.mu.Lock()
		if e.current == nil || e.current.ID != trackID {
			e.mu.Unlock()
			return
		}
		var events []Event
		if e.position == nil {
			f := fix
			e.position = &f
			events = append(events, Event{Kind: EventPosition, State: e.state, TrackID: trackID, Position: copyFix(&f), At: e.deps.Now()})
		}
		e.mu.Unlock()
		e.emit(events...)

		if e.deps.Geocoder == nil {
			return
		}
		loc, err := e.deps.Geocoder.Reverse(e.bgCtx, fix.Coordinate)
		if err != nil {
			e.log.Debug("reverse geocoding failed", "track_id", trackID, "error", err)
			return
		}

		e.mu.Lock()
		if e.current == nil || e.current.ID != trackID {
			e.mu.Unlock()
			return
		}
		l := loc
		e.current.Location = &l
		snapshot := e.persistedLocked()
		e.mu.Unlock()

		e.deps.Persister.Submit(snapshot)
		e.emit(Event{Kind: EventLocationResolved, TrackID: trackID, Location: &loc, At: e.deps.Now()})
	}()
}

func (e *Engine) acquireOptions() location.Options {
	return location.Options{
		HighAccuracy: true,
		Timeout:      e.cfg.AcquireTimeout,
		MaxFixAge:    0,
	}
}

// Pause suspends coordinate collection. Returns false unless recording.
func (e *Engine) Pause() bool {
	return e.toggle(Recording, Paused)
}

// Resume continues coordinate collection. Returns false unless paused.
func (e *Engine) Resume() bool {
	return e.toggle(Paused, Recording)
}

func (e *Engine) toggle(from, to State) bool {
	e.mu.Lock()
	if e.state != from || e.stopping || e.current == nil {
		e.mu.Unlock()
		return false
	}
	e.state = to
	e.current.IsPaused = to == Paused
	if to == Recording {
		e.resumed = true
	}
	id := e.current.ID
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.deps.Persister.Submit(snapshot)
	e.emit(Event{Kind: EventStateChanged, State: to, TrackID: id, At: e.deps.Now()})
	return true
}

// Stop finishes the current track, computes its summary, and writes the full
// state synchronously. The completed track is returned even when the write
// fails.
func (e *Engine) Stop(ctx context.Context) (core.Track, error) {
	e.mu.Lock()
	if e.state == Idle || e.current == nil || e.stopping {
		e.mu.Unlock()
		return core.Track{}, ErrNotRecording
	}
	e.stopping = true
	sub := e.sub
	e.sub = nil
	id := e.current.ID
	e.mu.Unlock()

	sub.Cancel()

	var finalAltitude float64
	fix, err := e.deps.Location.GetOnce(ctx, e.acquireOptions())
	switch {
	case err != nil:
		e.log.DebugContext(ctx, "final altitude unavailable", "track_id", id, "error", err)
	case fix.Altitude != nil:
		finalAltitude = *fix.Altitude
	}

	e.mu.Lock()
	t := e.current
	end := e.deps.Now()
	t.EndTime = &end
	t.IsPaused = false
	t.DurationSeconds = end.Sub(t.StartTime).Seconds()
	if t.DurationSeconds > 0 {
		t.AverageSpeed = t.Distance / (t.DurationSeconds / 3600)
	}
	if e.altCount > 0 {
		avg := e.altSum / float64(e.altCount)
		t.AverageAltitude = &avg
	}
	t.Altitude = finalAltitude
	switch {
	case e.lastFix != nil:
		t.EndMarker = core.MarkerFromFix(*e.lastFix)
	case len(t.Coordinates) > 0:
		t.EndMarker = core.MarkerFromFix(core.Fix{Coordinate: t.Coordinates[len(t.Coordinates)-1], Timestamp: end})
	}

	completed := t.Clone()
	e.tracks = append(e.tracks, completed.Clone())
	e.current = nil
	e.state = Idle
	e.stopping = false
	hadAlert := e.alert != nil
	e.resetSessionLocked()
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.log.InfoContext(ctx, "recording stopped",
		"track_id", id,
		"distance_km", completed.Distance,
		"points", len(completed.Coordinates),
		"findings", len(completed.Findings))

	published := completed.Clone()
	events := []Event{
		{Kind: EventStateChanged, State: Idle, TrackID: id, At: end},
		{Kind: EventTrackCompleted, TrackID: id, Track: &published, Distance: completed.Distance, At: end},
		{Kind: EventTracksChanged, At: end},
	}
	if hadAlert {
		events = append(events, Event{Kind: EventAlertCleared, TrackID: id, At: end})
		e.stopCue()
	}
	e.emit(events...)

	if err := e.deps.Persister.WriteNow(context.WithoutCancel(ctx), snapshot); err != nil {
		werr := storageError("stop", err)
		e.warn(werr)
		return completed, werr
	}
	return completed, nil
}

// DeleteTrack removes a completed track and writes the state. The in-memory
// removal stands even when the write fails.
func (e *Engine) DeleteTrack(ctx context.Context, id string) error {
	e.mu.Lock()
	idx := -1
	for i := range e.tracks {
		if e.tracks[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	kept := make([]core.Track, 0, len(e.tracks)-1)
	kept = append(kept, e.tracks[:idx]...)
	kept = append(kept, e.tracks[idx+1:]...)
	e.tracks = kept
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.emit(Event{Kind: EventTracksChanged, TrackID: id, At: e.deps.Now()})
	return e.writeNow(ctx, "delete track", snapshot)
}

// DeleteAllTracks removes every completed track and writes the state.
func (e *Engine) DeleteAllTracks(ctx context.Context) error {
	e.mu.Lock()
	e.tracks = []core.Track{}
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.emit(Event{Kind: EventTracksChanged, At: e.deps.Now()})
	return e.writeNow(ctx, "delete all tracks", snapshot)
}

// ImportTracks appends completed tracks with recomputed distances and
// returns how many were added.
func (e *Engine) ImportTracks(ctx context.Context, tracks []core.Track) (int, error) {
	if len(tracks) == 0 {
		return 0, nil
	}

	e.mu.Lock()
	seen := make(map[string]bool, len(e.tracks))
	for _, t := range e.tracks {
		seen[t.ID] = true
	}
	if e.current != nil {
		seen[e.current.ID] = true
	}

	added := make([]core.Track, 0, len(e.tracks)+len(tracks))
	added = append(added, e.tracks...)
	for _, in := range tracks {
		t := normalize(in.Clone())
		if t.ID == "" || seen[t.ID] {
			t.ID = e.deps.NewID()
		}
		seen[t.ID] = true
		for i := range t.Findings {
			t.Findings[i].TrackID = t.ID
			if t.Findings[i].ID == "" {
				t.Findings[i].ID = e.deps.NewID()
			}
		}
		t.RecordedPoints = len(t.Coordinates)
		t.Distance = trackKm(&t)
		t.IsPaused = false
		if t.EndTime == nil {
			end := t.StartTime
			if t.DurationSeconds > 0 {
				end = t.StartTime.Add(time.Duration(t.DurationSeconds * float64(time.Second)))
			}
			t.EndTime = &end
		}
		added = append(added, t)
	}
	e.tracks = added
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.emit(Event{Kind: EventTracksChanged, At: e.deps.Now()})
	return len(tracks), e.writeNow(ctx, "import tracks", snapshot)
}

// ExportTracks returns copies of the tracks with the given ids, or of every
// completed track when no id is given.
func (e *Engine) ExportTracks(ids ...string) []core.Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]core.Track, 0, len(e.tracks))
	for _, t := range e.tracks {
		if len(ids) == 0 || want[t.ID] {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (e *Engine) writeNow(ctx context.Context, op string, snapshot core.PersistedState) error {
	if err := e.deps.Persister.WriteNow(ctx, snapshot); err != nil {
		werr := storageError(op, err)
		e.warn(werr)
		return werr
	}
	return nil
}

func (e *Engine) warn(err error) {
	e.log.Warn("state not persisted", "error", err)
	e.emit(Event{Kind: EventPersistWarning, Err: err, At: e.deps.Now()})
}

// OnPersistError reports a failed background write to observers. Wire it to
// the persister's error callback.
func (e *Engine) OnPersistError(err error) {
	e.warn(storageError("autosave", err))
}
