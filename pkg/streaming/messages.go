package streaming

import (
	"encoding/json"
)

// Message type constants matching the live track protocol.
const (
	TypePosition = "position"
	TypeTrack    = "track"
	TypeFinding  = "finding"
	TypeAlert    = "alert"
	TypeState    = "state"
	TypeWarning  = "warning"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PositionPayload carries one accepted fix. X and Y are EPSG:3857 meters.
type PositionPayload struct {
	TrackID  string   `json:"trackId"`
	State    string   `json:"state"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Heading  float64  `json:"heading"`
	Distance float64  `json:"distanceKm"`
	Altitude *float64 `json:"altitude,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// TrackPayload summarizes a completed track. Path is a GeoJSON geometry.
type TrackPayload struct {
	ID           string          `json:"id"`
	Distance     float64         `json:"distanceKm"`
	Duration     float64         `json:"durationSeconds"`
	AverageSpeed float64         `json:"avgSpeedKmh"`
	Points       int             `json:"points"`
	Findings     int             `json:"findings"`
	Path         json.RawMessage `json:"path,omitempty"`
}

// FindingPayload carries a newly tagged finding.
type FindingPayload struct {
	ID      string  `json:"id"`
	TrackID string  `json:"trackId"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// AlertPayload reports a proximity alert transition.
type AlertPayload struct {
	Action    string  `json:"action"` // raised, cleared, muted, dismissed
	FindingID string  `json:"findingId,omitempty"`
	Name      string  `json:"name,omitempty"`
	Type      string  `json:"type,omitempty"`
	Distance  float64 `json:"distanceMeters,omitempty"`
	Muted     bool    `json:"muted,omitempty"`
}

// StatePayload carries a recording state change.
type StatePayload struct {
	State   string `json:"state"`
	TrackID string `json:"trackId,omitempty"`
}

// WarningPayload reports a non-fatal failure.
type WarningPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}
