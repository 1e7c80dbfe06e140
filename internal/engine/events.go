package engine

import (
	"time"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// State is the recording state.
type State int

const (
	Idle State = iota
	Recording
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// EventKind identifies what changed.
type EventKind int

const (
	EventStateChanged EventKind = iota + 1
	EventPosition
	EventHeading
	EventFindingAdded
	EventFindingsLoaded
	EventAlertRaised
	EventAlertCleared
	EventAlertMuted
	EventAlertDismissed
	EventLocationResolved
	EventLocationError
	EventTrackCompleted
	EventTracksChanged
	EventPersistWarning
)

var eventNames = map[EventKind]string{
	EventStateChanged:     "state",
	EventPosition:         "position",
	EventHeading:          "heading",
	EventFindingAdded:     "finding",
	EventFindingsLoaded:   "findings_loaded",
	EventAlertRaised:      "alert_raised",
	EventAlertCleared:     "alert_cleared",
	EventAlertMuted:       "alert_muted",
	EventAlertDismissed:   "alert_dismissed",
	EventLocationResolved: "location_resolved",
	EventLocationError:    "location_error",
	EventTrackCompleted:   "track_completed",
	EventTracksChanged:    "tracks_changed",
	EventPersistWarning:   "persist_warning",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is delivered to observers after the engine lock is released.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	State    State
	TrackID  string
	Position *core.Fix
	Heading  float64
	Distance float64 // km
	Finding  *core.Finding
	Alert    *Alert
	Track    *core.Track
	Location *core.Location
	Err      error
	At       time.Time
}

// Alert is raised when the position comes within range of a loaded finding.
type Alert struct {
	Finding        core.Finding
	DistanceMeters float64
	Muted          bool
	RaisedAt       time.Time
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	State          State
	CurrentTrack   *core.Track
	Position       *core.Fix
	Heading        float64
	HasHeading     bool
	Alert          *Alert
	LoadedFindings []core.Finding
	Tracks         []core.Track
}
