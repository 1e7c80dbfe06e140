package core

import (
	"fmt"
	"strings"
	"time"
)

// FindingType classifies a tagged observation.
type FindingType string

const (
	FindingTruffle  FindingType = "truffle"
	FindingMushroom FindingType = "mushroom"
	FindingPOI      FindingType = "poi"
)

// FindingTypes lists the accepted finding types.
var FindingTypes = []FindingType{FindingTruffle, FindingMushroom, FindingPOI}

// ParseFindingType maps s onto the closed set of finding types.
func ParseFindingType(s string) (FindingType, error) {
	switch FindingType(strings.ToLower(strings.TrimSpace(s))) {
	case FindingTruffle:
		return FindingTruffle, nil
	case FindingMushroom:
		return FindingMushroom, nil
	case FindingPOI:
		return FindingPOI, nil
	default:
		return "", fmt.Errorf("unknown finding type %q", s)
	}
}

// Finding is an observation tied to a track.
type Finding struct {
	ID          string      `json:"id"`
	TrackID     string      `json:"trackId"`
	Name        string      `json:"name"`
	Type        FindingType `json:"type"`
	Description string      `json:"description,omitempty"`
	PhotoURL    string      `json:"photoUrl,omitempty"`
	Coordinates Coordinate  `json:"coordinates"`
	Altitude    *float64    `json:"altitude,omitempty"`
	Accuracy    *float64    `json:"accuracy,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Clone returns a deep copy of f.
func (f Finding) Clone() Finding {
	c := f
	c.Altitude = copyFloat(f.Altitude)
	c.Accuracy = copyFloat(f.Accuracy)
	return c
}

// FindingInput is the caller-supplied part of a new finding. Coordinates are
// never taken from the caller.
type FindingInput struct {
	Name        string
	Type        FindingType
	Description string
	PhotoURL    string
}
