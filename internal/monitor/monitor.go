package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
)

// SnapshotSource reports the engine state.
type SnapshotSource interface {
	Snapshot() engine.Snapshot
}

// TierSource reports which storage tier took the last write.
type TierSource interface {
	LastTier() string
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine   SnapshotSource
	Store    TierSource // optional
	Logger   *slog.Logger
	Path     string
	Interval time.Duration
}

// Status is the document written to the status file.
type Status struct {
	Time       time.Time `json:"time"`
	State      string    `json:"state"`
	TrackID    string    `json:"trackId,omitempty"`
	DistanceKm float64   `json:"distanceKm"`
	Points     int       `json:"points"`
	Findings   int       `json:"findings"`
	Completed  int       `json:"completedTracks"`
	Heading    *float64  `json:"heading,omitempty"`
	Alert      string    `json:"alert,omitempty"`
	StoreTier  string    `json:"storeTier,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus builds the current status.
func (s *Service) GetStatus() Status {
	snap := s.deps.Engine.Snapshot()
	st := Status{
		Time:      time.Now(),
		State:     snap.State.String(),
		Completed: len(snap.Tracks),
	}
	if t := snap.CurrentTrack; t != nil {
		st.TrackID = t.ID
		st.DistanceKm = t.Distance
		st.Points = len(t.Coordinates)
		st.Findings = len(t.Findings)
	}
	if snap.HasHeading {
		h := snap.Heading
		st.Heading = &h
	}
	if a := snap.Alert; a != nil {
		st.Alert = fmt.Sprintf("%s %q at %.1f m", a.Finding.Type, a.Finding.Name, a.DistanceMeters)
	}
	if s.deps.Store != nil {
		st.StoreTier = s.deps.Store.LastTier()
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return err
	}
	tmp := s.deps.Path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("error writing status file: %w", err)
	}
	return os.Rename(tmp, s.deps.Path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", s.deps.Path, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			if err := s.WriteStatus(); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and writes a final status.
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.done
	running := s.isRunning
	s.stopChan = nil
	s.mu.Unlock()

	if !running || stop == nil {
		return
	}
	close(stop)
	<-done
	if err := s.WriteStatus(); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
}
