package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/geo"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// UpdatePosition folds one fix into the session. It is safe for concurrent
// use and never blocks on I/O. Fixes at (0,0), invalid fixes and fixes
// outside a session are dropped.
func (e *Engine) UpdatePosition(fix core.Fix) {
	if !fix.Valid() {
		e.log.Debug("dropping invalid fix", "lat", fix.Lat, "lng", fix.Lng)
		return
	}

	e.mu.Lock()
	if e.state == Idle || e.stopping || e.current == nil {
		e.mu.Unlock()
		return
	}
	now := e.deps.Now()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	t := e.current
	f := fix
	e.position = &f

	events := make([]Event, 0, 3)
	if e.state == Recording {
		prev, hasPrev := t.LastCoordinate()
		t.Coordinates = append(t.Coordinates, fix.Coordinate)
		t.RecordedPoints++
		if hasPrev && e.resumed {
			// distance covered while paused is not walked track
			t.SegmentStarts = append(t.SegmentStarts, len(t.Coordinates)-1)
		} else if hasPrev {
			moved := geo.DistanceMeters(prev, fix.Coordinate)
			t.Distance += moved / 1000
			if moved > e.cfg.HeadingMinMove {
				e.heading = geo.BearingDegrees(prev, fix.Coordinate)
				e.hasHeading = true
				events = append(events, Event{Kind: EventHeading, TrackID: t.ID, Heading: e.heading, At: now})
			}
		}
		if t.StartMarker == nil {
			t.StartMarker = core.MarkerFromFix(fix)
		}
		if fix.Altitude != nil {
			e.altSum += *fix.Altitude
			e.altCount++
			t.Altitude = *fix.Altitude
		}
		e.resumed = false
		e.lastFix = &f
		e.unsaved++
	}
	events = append([]Event{{
		Kind:     EventPosition,
		State:    e.state,
		TrackID:  t.ID,
		Position: copyFix(&f),
		Heading:  e.heading,
		Distance: t.Distance,
		At:       now,
	}}, events...)

	alertEvents, playCue := e.checkProximityLocked(fix.Coordinate)
	events = append(events, alertEvents...)

	var snapshot core.PersistedState
	save := e.unsaved >= e.cfg.AutoSaveEvery
	if save {
		e.unsaved = 0
		snapshot = e.persistedLocked()
	}
	e.mu.Unlock()

	if save {
		e.deps.Persister.Submit(snapshot)
	}
	if playCue && e.deps.Cue != nil {
		e.deps.Cue.Play()
	}
	e.emit(events...)
}

// checkProximityLocked raises an alert once when a loaded finding comes within
// EnterRadius and re-arms it only after the position leaves ExitRadius.
func (e *Engine) checkProximityLocked(c core.Coordinate) ([]Event, bool) {
	var events []Event
	playCue := false
	now := e.deps.Now()

	for _, f := range e.loaded {
		key := alertKey(f)
		d := geo.DistanceMeters(c, f.Coordinates)
		switch {
		case !e.alerting[key] && d <= e.cfg.EnterRadius:
			e.alerting[key] = true
			e.alert = &Alert{Finding: f.Clone(), DistanceMeters: d, Muted: e.muted, RaisedAt: now}
			a := *e.alert
			events = append(events, Event{Kind: EventAlertRaised, Alert: &a, Finding: &a.Finding, At: now})
			if !e.muted {
				playCue = true
			}
		case e.alerting[key] && d > e.cfg.ExitRadius:
			delete(e.alerting, key)
			if e.alert != nil && alertKey(e.alert.Finding) == key {
				e.alert = nil
				ff := f.Clone()
				events = append(events, Event{Kind: EventAlertCleared, Finding: &ff, At: now})
			}
		}
	}
	return events, playCue
}

func alertKey(f core.Finding) string {
	if f.ID != "" {
		return f.ID
	}
	return fmt.Sprintf("%.7f,%.7f", f.Coordinates.Lat, f.Coordinates.Lng)
}

// AddFinding tags the current position with a finding. A fresh fix is
// acquired first; if that fails no finding is created.
func (e *Engine) AddFinding(ctx context.Context, in core.FindingInput) (core.Finding, error) {
	in.Name = strings.TrimSpace(in.Name)
	ft, err := core.ParseFindingType(string(in.Type))
	if err != nil {
		return core.Finding{}, fmt.Errorf("%w: %v", ErrInvalidFinding, err)
	}
	if in.Name == "" {
		return core.Finding{}, fmt.Errorf("%w: name is required", ErrInvalidFinding)
	}

	e.mu.Lock()
	if e.current == nil || e.state == Idle {
		e.mu.Unlock()
		return core.Finding{}, ErrNoActiveTrack
	}
	trackID := e.current.ID
	e.mu.Unlock()

	fix, err := e.deps.Location.GetOnce(ctx, e.acquireOptions())
	if err != nil {
		return core.Finding{}, &Error{Kind: KindAcquisitionFailed, Op: "add finding", Err: err}
	}
	if !fix.Valid() {
		return core.Finding{}, &Error{Kind: KindAcquisitionFailed, Op: "add finding", Err: fmt.Errorf("unusable fix %.6f,%.6f", fix.Lat, fix.Lng)}
	}

	e.mu.Lock()
	if e.current == nil || e.current.ID != trackID {
		e.mu.Unlock()
		return core.Finding{}, ErrNoActiveTrack
	}
	now := e.deps.Now()
	finding := core.Finding{
		ID:          e.deps.NewID(),
		TrackID:     trackID,
		Name:        in.Name,
		Type:        ft,
		Description: strings.TrimSpace(in.Description),
		PhotoURL:    in.PhotoURL,
		Coordinates: fix.Coordinate,
		Altitude:    fix.Altitude,
		Accuracy:    fix.Accuracy,
		Timestamp:   now,
	}.Clone()
	e.current.Findings = append(e.current.Findings, finding)
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.log.InfoContext(ctx, "finding added", "track_id", trackID, "finding_id", finding.ID, "type", finding.Type)
	e.deps.Persister.Submit(snapshot)
	out := finding.Clone()
	e.emit(Event{Kind: EventFindingAdded, TrackID: trackID, Finding: &out, At: now})
	return finding.Clone(), nil
}

// LoadFindings replaces the set of findings checked for proximity.
func (e *Engine) LoadFindings(findings []core.Finding) {
	e.mu.Lock()
	e.loaded = cloneFindings(findings)
	keep := make(map[string]bool, len(e.loaded))
	for _, f := range e.loaded {
		if key := alertKey(f); e.alerting[key] {
			keep[key] = true
		}
	}
	e.alerting = keep
	events := []Event{{Kind: EventFindingsLoaded, At: e.deps.Now()}}
	playCue := false
	if e.position != nil && e.state != Idle {
		var alertEvents []Event
		alertEvents, playCue = e.checkProximityLocked(e.position.Coordinate)
		events = append(events, alertEvents...)
	}
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.deps.Persister.Submit(snapshot)
	if playCue && e.deps.Cue != nil {
		e.deps.Cue.Play()
	}
	e.emit(events...)
}

// ClearLoadedFindings drops every loaded finding and any displayed alert.
func (e *Engine) ClearLoadedFindings() {
	e.mu.Lock()
	e.loaded = nil
	e.alerting = make(map[string]bool)
	hadAlert := e.alert != nil
	e.alert = nil
	snapshot := e.persistedLocked()
	e.mu.Unlock()

	e.deps.Persister.Submit(snapshot)
	events := []Event{{Kind: EventFindingsLoaded, At: e.deps.Now()}}
	if hadAlert {
		e.stopCue()
		events = append(events, Event{Kind: EventAlertCleared, At: e.deps.Now()})
	}
	e.emit(events...)
}

// MuteAlert silences the alert cue for the rest of the session.
func (e *Engine) MuteAlert() {
	e.mu.Lock()
	e.muted = true
	if e.alert != nil {
		e.alert.Muted = true
	}
	e.mu.Unlock()

	e.stopCue()
	e.emit(Event{Kind: EventAlertMuted, At: e.deps.Now()})
}

// DismissAlert hides the displayed alert. The finding stays armed off until
// the position leaves its exit radius.
func (e *Engine) DismissAlert() {
	e.mu.Lock()
	if e.alert == nil {
		e.mu.Unlock()
		return
	}
	f := e.alert.Finding
	e.alert = nil
	e.mu.Unlock()

	e.stopCue()
	e.emit(Event{Kind: EventAlertDismissed, Finding: &f, At: e.deps.Now()})
}

func (e *Engine) stopCue() {
	if e.deps.Cue != nil {
		e.deps.Cue.Stop()
	}
}
