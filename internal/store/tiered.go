package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Tiered writes to a primary backend and moves to a fallback backend when the
// primary is full or unreachable. Reads return the newest copy held by either
// tier.
type Tiered struct {
	primary  Backend
	fallback Backend
	log      zerolog.Logger

	now      func() time.Time
	mu       sync.Mutex
	lastTier string
	rev      int64
}

var _ Store = (*Tiered)(nil)

// NewTiered creates a two-tier store. fallback may be nil.
func NewTiered(primary, fallback Backend, log zerolog.Logger) *Tiered {
	return &Tiered{
		primary:  primary,
		fallback: fallback,
		log:      log,
		now:      time.Now,
	}
}

// LastTier returns the name of the tier that took the last successful write.
func (t *Tiered) LastTier() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTier
}

func (t *Tiered) setLastTier(name string) {
	t.mu.Lock()
	t.lastTier = name
	t.mu.Unlock()
}

// envelope tags a stored value with the revision of the Set that wrote it,
// so a stale copy left in the other tier loses to the newer one on read.
type envelope struct {
	Rev   int64           `json:"_rev"`
	Value json.RawMessage `json:"_value"`
}

func (t *Tiered) nextRev() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	rev := t.now().UnixNano()
	if rev <= t.rev {
		rev = t.rev + 1
	}
	t.rev = rev
	return rev
}

// unwrap splits stored bytes into revision and value. Bytes written without
// an envelope read as revision zero.
func unwrap(data []byte) (int64, []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Value == nil {
		return 0, data
	}
	return env.Rev, env.Value
}

// Set encodes value and writes it to the first tier that accepts it.
// When no tier accepts it the error wraps ErrQuotaExceeded if any tier was
// full, and ErrUnavailable otherwise.
func (t *Tiered) Set(ctx context.Context, key string, value any) error {
	raw, err := Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	data, err := json.Marshal(envelope{Rev: t.nextRev(), Value: raw})
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	perr := t.primary.Write(ctx, key, data)
	if perr == nil {
		t.setLastTier(t.primary.Name())
		t.discard(ctx, t.fallback, key)
		return nil
	}

	if t.fallback == nil {
		t.log.Error().Err(perr).Str("key", key).Str("tier", t.primary.Name()).Msg("Failed to persist, no fallback tier")
		return fmt.Errorf("store %q: %w", key, exhausted(perr))
	}

	t.log.Warn().Err(perr).Str("key", key).Str("tier", t.primary.Name()).Msg("Primary tier rejected write, using fallback")
	ferr := t.fallback.Write(ctx, key, data)
	if ferr == nil {
		t.setLastTier(t.fallback.Name())
		t.discard(ctx, t.primary, key)
		return nil
	}

	t.log.Error().
		Err(ferr).
		AnErr("primaryErr", perr).
		Str("key", key).
		Msg("All storage tiers exhausted")
	return fmt.Errorf("store %q: all tiers failed: %w", key, exhausted(perr, ferr))
}

// exhausted joins tier failures under the sentinel that describes them.
func exhausted(errs ...error) error {
	for _, err := range errs {
		if IsQuota(err) {
			return errors.Join(append([]error{ErrQuotaExceeded}, errs...)...)
		}
	}
	for _, err := range errs {
		if errors.Is(err, ErrUnavailable) {
			return errors.Join(errs...)
		}
	}
	return errors.Join(append([]error{ErrUnavailable}, errs...)...)
}

// discard removes a stale copy. A copy that cannot be removed is shadowed by
// the newer revision on read.
func (t *Tiered) discard(ctx context.Context, b Backend, key string) {
	if b == nil {
		return
	}
	if err := b.Remove(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		t.log.Warn().Err(err).Str("key", key).Str("tier", b.Name()).Msg("Failed to remove stale copy")
	}
}

// Get reads both tiers and decodes the copy with the newest revision.
func (t *Tiered) Get(ctx context.Context, key string, out any) (bool, error) {
	pdata, perr := t.primary.Read(ctx, key)
	if perr != nil && !errors.Is(perr, ErrNotFound) {
		t.log.Warn().Err(perr).Str("key", key).Str("tier", t.primary.Name()).Msg("Primary tier read failed")
	}

	ferr := error(ErrNotFound)
	var fdata []byte
	if t.fallback != nil {
		fdata, ferr = t.fallback.Read(ctx, key)
	}

	switch {
	case perr == nil && ferr == nil:
		prev, pval := unwrap(pdata)
		frev, fval := unwrap(fdata)
		if frev > prev {
			t.log.Debug().Str("key", key).Str("tier", t.primary.Name()).Msg("Ignoring stale copy")
			return t.decode(key, t.fallback, fval, out)
		}
		return t.decode(key, t.primary, pval, out)
	case perr == nil:
		_, pval := unwrap(pdata)
		return t.decode(key, t.primary, pval, out)
	case ferr == nil:
		_, fval := unwrap(fdata)
		return t.decode(key, t.fallback, fval, out)
	case errors.Is(ferr, ErrNotFound) && errors.Is(perr, ErrNotFound):
		return false, nil
	case errors.Is(ferr, ErrNotFound):
		return false, perr
	case errors.Is(perr, ErrNotFound):
		return false, ferr
	default:
		return false, errors.Join(perr, ferr)
	}
}

func (t *Tiered) decode(key string, b Backend, data []byte, out any) (bool, error) {
	if err := Decode(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %q from %s: %w", key, b.Name(), err)
	}
	return true, nil
}

// Delete removes key from every tier.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	var errs []error
	for _, b := range []Backend{t.primary, t.fallback} {
		if b == nil {
			continue
		}
		if err := b.Remove(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes both tiers.
func (t *Tiered) Close() error {
	var errs []error
	for _, b := range []Backend{t.primary, t.fallback} {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
