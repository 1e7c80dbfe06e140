// internal/store/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
)

// Backend keeps values in a map. A positive maxBytes limits the total size of
// stored values.
type Backend struct {
	name        string
	maxBytes    int64
	data        map[string][]byte
	used        int64
	unavailable bool
	mu          sync.RWMutex
}

var _ store.Backend = (*Backend)(nil)

// New creates a new memory backend
func New(name string, maxBytes int64) *Backend {
	if name == "" {
		name = "memory"
	}
	return &Backend{
		name:     name,
		maxBytes: maxBytes,
		data:     make(map[string][]byte),
	}
}

// Name returns the tier name.
func (b *Backend) Name() string {
	return b.name
}

// SetAvailable toggles whether the backend accepts reads and writes.
func (b *Backend) SetAvailable(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = !ok
}

// SetMaxBytes changes the quota. Existing values are kept.
func (b *Backend) SetMaxBytes(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maxBytes = n
}

// Used returns the total size of stored values.
func (b *Backend) Used() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.used
}

// Has reports whether key holds a value.
func (b *Backend) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data[key]
	return ok
}

// Read returns a copy of the value at key.
func (b *Backend) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.unavailable {
		return nil, store.ErrUnavailable
	}
	v, ok := b.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Write stores a copy of data at key.
func (b *Backend) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return store.ErrUnavailable
	}
	next := b.used - int64(len(b.data[key])) + int64(len(data))
	if b.maxBytes > 0 && next > b.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes", store.ErrQuotaExceeded, next, b.maxBytes)
	}
	b.data[key] = append([]byte(nil), data...)
	b.used = next
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unavailable {
		return store.ErrUnavailable
	}
	b.used -= int64(len(b.data[key]))
	delete(b.data, key)
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}
