// Package location wraps a device location platform behind a bounded-retry
// one-shot acquisition and a continuous watch.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

var (
	// ErrUnavailable means the device has no location capability.
	ErrUnavailable = errors.New("location unavailable")
	// ErrDenied means the user refused location permission. Never retried.
	ErrDenied = errors.New("location permission denied")
	// ErrTimeout means no fix arrived within the requested timeout.
	ErrTimeout = errors.New("location timeout")
	// ErrPositionUnavailable means the platform could not compute a position.
	ErrPositionUnavailable = errors.New("position unavailable")
)

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDenied), errors.Is(err, ErrUnavailable):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Options are passed to the platform with every request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxFixAge    time.Duration
}

// WatchID identifies a platform watch.
type WatchID int64

// Platform is the device location API.
type Platform interface {
	GetOnce(ctx context.Context, opts Options) (core.Fix, error)
	Watch(opts Options, onFix func(core.Fix), onError func(error)) (WatchID, error)
	ClearWatch(id WatchID)
}

// Config controls retry escalation.
type Config struct {
	Options     Options
	MaxRetries  int
	RetryDelay  time.Duration
	TimeoutStep time.Duration
	MaxAgeStep  time.Duration
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Options: Options{
			HighAccuracy: true,
			Timeout:      10 * time.Second,
			MaxFixAge:    0,
		},
		MaxRetries:  3,
		RetryDelay:  time.Second,
		TimeoutStep: 5 * time.Second,
		MaxAgeStep:  30 * time.Second,
	}
}

// Source adds retry policy on top of a Platform.
type Source struct {
	platform Platform
	cfg      Config
	log      *slog.Logger
}

// New creates a Source.
func New(platform Platform, cfg Config, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Source{platform: platform, cfg: cfg, log: logger}
}

// Defaults returns the base options of the source.
func (s *Source) Defaults() Options {
	return s.cfg.Options
}

// GetOnce requests a single fix. Failed attempts are retried up to MaxRetries
// times, each with relaxed accuracy and a longer timeout and fix age.
func (s *Source) GetOnce(ctx context.Context, opts Options) (core.Fix, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return core.Fix{}, ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		o := s.escalate(opts, attempt)
		fix, err := s.attempt(ctx, o)
		if err == nil {
			return fix, nil
		}
		lastErr = err

		if !Retryable(err) || ctx.Err() != nil {
			return core.Fix{}, err
		}
		s.log.Debug("location attempt failed",
			"attempt", attempt+1,
			"highAccuracy", o.HighAccuracy,
			"timeout", o.Timeout,
			"error", err)
	}
	return core.Fix{}, fmt.Errorf("after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

func (s *Source) attempt(ctx context.Context, o Options) (core.Fix, error) {
	actx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	fix, err := s.platform.GetOnce(actx, o)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return core.Fix{}, ErrTimeout
		}
		return core.Fix{}, err
	}
	return fix, nil
}

func (s *Source) escalate(o Options, attempt int) Options {
	if attempt == 0 {
		return o
	}
	o.HighAccuracy = false
	o.Timeout += time.Duration(attempt) * s.cfg.TimeoutStep
	o.MaxFixAge += time.Duration(attempt) * s.cfg.MaxAgeStep
	return o
}

// Watch opens a continuous subscription with the base options. Every fix the
// platform delivers reaches onFix. Errors go to onError and do not end the
// subscription.
func (s *Source) Watch(onFix func(core.Fix), onError func(error)) (*Subscription, error) {
	if onError == nil {
		onError = func(err error) {
			s.log.Debug("location watch error", "error", err)
		}
	}
	id, err := s.platform.Watch(s.cfg.Options, onFix, onError)
	if err != nil {
		return nil, err
	}
	return &Subscription{id: id, platform: s.platform}, nil
}

// Cancel ends sub. Safe to call more than once and with nil.
func (s *Source) Cancel(sub *Subscription) {
	sub.Cancel()
}

// Subscription is an open watch.
type Subscription struct {
	id       WatchID
	platform Platform
	once     sync.Once
}

// ID returns the platform watch id.
func (s *Subscription) ID() WatchID {
	return s.id
}

// Cancel clears the platform watch once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.platform.ClearWatch(s.id)
	})
}
