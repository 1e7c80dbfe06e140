// Package live streams engine events to a render layer over WebSocket.
package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/engine"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/geo"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/streaming"
)

// Config holds the live stream settings.
type Config struct {
	URL        string
	Secret     string
	BufferSize int
}

// Publisher converts engine events into envelopes and sends them without
// blocking the caller.
type Publisher struct {
	conn    *connection
	cfg     Config
	logger  *slog.Logger
	dropped atomic.Int64
}

// New creates a Publisher. Call Connect before handling events.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "live")
	return &Publisher{
		conn:   newConnection(cfg.BufferSize, logger),
		cfg:    cfg,
		logger: logger,
	}
}

// Connect dials the server.
func (p *Publisher) Connect() error {
	return p.conn.dial(p.cfg.URL, p.cfg.Secret)
}

// Close disconnects from the server.
func (p *Publisher) Close() error {
	return p.conn.close()
}

// Dropped returns how many messages were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Handle forwards ev. Events without a wire form are ignored. Subscribe it to
// the engine.
func (p *Publisher) Handle(ev engine.Event) {
	msgType, payload, ok := Translate(ev)
	if !ok {
		return
	}
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		p.logger.Debug("failed to encode live message", "type", msgType, "error", err)
		return
	}
	if msgType == streaming.TypeState {
		p.conn.rememberState(data)
	}
	if !p.conn.send(data) {
		p.dropped.Add(1)
	}
}

// Translate maps an engine event onto a message type and payload.
func Translate(ev engine.Event) (string, any, bool) {
	switch ev.Kind {
	case engine.EventPosition:
		if ev.Position == nil {
			return "", nil, false
		}
		x, y := geo.WebMercator(ev.Position.Coordinate)
		return streaming.TypePosition, streaming.PositionPayload{
			TrackID:  ev.TrackID,
			State:    ev.State.String(),
			Lat:      ev.Position.Lat,
			Lng:      ev.Position.Lng,
			X:        x,
			Y:        y,
			Heading:  ev.Heading,
			Distance: ev.Distance,
			Altitude: ev.Position.Altitude,
			Accuracy: ev.Position.Accuracy,
		}, true

	case engine.EventTrackCompleted:
		if ev.Track == nil {
			return "", nil, false
		}
		t := ev.Track
		payload := streaming.TrackPayload{
			ID:           t.ID,
			Distance:     t.Distance,
			Duration:     t.DurationSeconds,
			AverageSpeed: t.AverageSpeed,
			Points:       len(t.Coordinates),
			Findings:     len(t.Findings),
		}
		if path, err := geo.PathGeoJSON(t.Coordinates); err == nil {
			payload.Path = path
		}
		return streaming.TypeTrack, payload, true

	case engine.EventFindingAdded:
		if ev.Finding == nil {
			return "", nil, false
		}
		f := ev.Finding
		return streaming.TypeFinding, streaming.FindingPayload{
			ID:      f.ID,
			TrackID: f.TrackID,
			Name:    f.Name,
			Type:    string(f.Type),
			Lat:     f.Coordinates.Lat,
			Lng:     f.Coordinates.Lng,
		}, true

	case engine.EventAlertRaised, engine.EventAlertCleared, engine.EventAlertMuted, engine.EventAlertDismissed:
		payload := streaming.AlertPayload{Action: alertAction(ev.Kind)}
		if ev.Alert != nil {
			payload.Distance = ev.Alert.DistanceMeters
			payload.Muted = ev.Alert.Muted
		}
		if ev.Finding != nil {
			payload.FindingID = ev.Finding.ID
			payload.Name = ev.Finding.Name
			payload.Type = string(ev.Finding.Type)
		}
		return streaming.TypeAlert, payload, true

	case engine.EventStateChanged:
		return streaming.TypeState, streaming.StatePayload{State: ev.State.String(), TrackID: ev.TrackID}, true

	case engine.EventPersistWarning, engine.EventLocationError:
		if ev.Err == nil {
			return "", nil, false
		}
		source := "storage"
		if ev.Kind == engine.EventLocationError {
			source = "location"
		}
		return streaming.TypeWarning, streaming.WarningPayload{Source: source, Message: ev.Err.Error()}, true
	}
	return "", nil, false
}

func alertAction(k engine.EventKind) string {
	switch k {
	case engine.EventAlertRaised:
		return "raised"
	case engine.EventAlertCleared:
		return "cleared"
	case engine.EventAlertMuted:
		return "muted"
	default:
		return "dismissed"
	}
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
