// internal/store/store.go
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no stored value
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded is returned when a tier has no room for the value
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrUnavailable is returned when a tier cannot be reached or used
	ErrUnavailable = errors.New("storage unavailable")
)

// IsQuota reports whether err means the value could not be stored for lack of space.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// Backend is one raw storage tier.
type Backend interface {
	Name() string
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Store persists structured values under string keys.
type Store interface {
	// Get decodes the value at key into out. It reports false when the key
	// is absent from every tier.
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}
