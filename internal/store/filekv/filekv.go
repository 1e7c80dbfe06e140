// Package filekv stores each key as a JSON file in a directory. Writes go
// through a temp file and a rename so a crash never leaves a torn value.
package filekv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
)

const ext = ".json"

// Backend is a directory of key files.
type Backend struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
}

var _ store.Backend = (*Backend)(nil)

// New creates the directory if needed. A positive maxBytes caps the total size
// of all key files.
func New(dir string, maxBytes int64) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return &Backend{dir: dir, maxBytes: maxBytes}, nil
}

// Name returns the tier name.
func (b *Backend) Name() string {
	return "file"
}

// Dir returns the backing directory.
func (b *Backend) Dir() string {
	return b.dir
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key)+ext)
}

// Read returns the contents of the key file.
func (b *Backend) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, classify("read", key, err)
	}
	return data, nil
}

// Write replaces the key file atomically.
func (b *Backend) Write(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.path(key)
	if b.maxBytes > 0 {
		used, err := b.usage(target)
		if err != nil {
			return classify("stat", key, err)
		}
		if used+int64(len(data)) > b.maxBytes {
			return fmt.Errorf("%w: %s needs %d bytes, %d of %d used",
				store.ErrQuotaExceeded, key, len(data), used, b.maxBytes)
		}
	}

	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return classify("create", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return classify("write", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return classify("sync", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return classify("close", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return classify("rename", key, err)
	}
	return nil
}

// Remove deletes the key file. Missing keys are not an error.
func (b *Backend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classify("remove", key, err)
	}
	return nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

// usage sums key file sizes, excluding the file about to be replaced.
func (b *Backend) usage(exclude string) (int64, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		if filepath.Join(b.dir, e.Name()) == exclude {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func classify(op, key string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %s %s: %v", store.ErrQuotaExceeded, op, key, err)
	}
	return fmt.Errorf("%w: %s %s: %v", store.ErrUnavailable, op, key, err)
}
