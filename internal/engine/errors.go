package engine

import (
	"errors"
	"fmt"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/location"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
)

var (
	// ErrNoActiveTrack is returned when an operation needs a recording session.
	ErrNoActiveTrack = errors.New("no active track")
	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("not recording")
	// ErrTrackNotFound is returned when a track id is unknown.
	ErrTrackNotFound = errors.New("track not found")
	// ErrInvalidFinding is returned for findings with a missing name or unknown type.
	ErrInvalidFinding = errors.New("invalid finding")
	// ErrActive is returned by Restore while a session is running.
	ErrActive = errors.New("recording session already active")
)

// Kind classifies failures surfaced to the render layer.
type Kind int

const (
	KindLocationUnavailable Kind = iota + 1
	KindLocationDenied
	KindLocationTimeout
	KindStorageQuotaExceeded
	KindStorageFailed
	KindAcquisitionFailed
	KindImportFormatInvalid
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrLocationUnavailable  = errors.New("location unavailable")
	ErrLocationDenied       = errors.New("location denied")
	ErrLocationTimeout      = errors.New("location timeout")
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")
	ErrStorageFailed        = errors.New("storage failed")
	ErrAcquisitionFailed    = errors.New("acquisition failed")
	ErrImportFormatInvalid  = errors.New("import format invalid")
)

var kindSentinels = map[Kind]error{
	KindLocationUnavailable:  ErrLocationUnavailable,
	KindLocationDenied:       ErrLocationDenied,
	KindLocationTimeout:      ErrLocationTimeout,
	KindStorageQuotaExceeded: ErrStorageQuotaExceeded,
	KindStorageFailed:        ErrStorageFailed,
	KindAcquisitionFailed:    ErrAcquisitionFailed,
	KindImportFormatInvalid:  ErrImportFormatInvalid,
}

func (k Kind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure of an engine operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func storageError(op string, err error) *Error {
	kind := KindStorageFailed
	if store.IsQuota(err) {
		kind = KindStorageQuotaExceeded
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func locationError(op string, err error) *Error {
	kind := KindLocationTimeout
	switch {
	case errors.Is(err, location.ErrDenied):
		kind = KindLocationDenied
	case errors.Is(err, location.ErrUnavailable), errors.Is(err, location.ErrPositionUnavailable):
		kind = KindLocationUnavailable
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewImportError wraps a parse failure of imported text.
func NewImportError(err error) *Error {
	return &Error{Kind: KindImportFormatInvalid, Op: "import", Err: err}
}
