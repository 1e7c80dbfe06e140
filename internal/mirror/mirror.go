// Package mirror keeps the durable copy of the recorder state in step with
// memory. Every write carries the full snapshot, and a snapshot never
// overwrites a newer one that already landed.
package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a Mirror.
type Option func(*config)

type config struct {
	onError func(error)
	logged  bool
}

// OnError registers a callback for failed background writes.
func OnError(fn func(error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// Logged adds debug logging to every write.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type job struct {
	seq   uint64
	state core.PersistedState
}

// Mirror writes PersistedState snapshots to a store under one key.
type Mirror struct {
	store  store.Store
	key    string
	logger Logger
	cfg    config

	mu      sync.Mutex
	pending *job
	seq     uint64
	closed  bool

	// writeMu serializes store writes; landed is guarded by it.
	writeMu sync.Mutex
	landed  uint64

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// OTEL metrics
	pendingGauge metric.Int64ObservableGauge
	submitted    metric.Int64Counter
	completed    metric.Int64Counter
	superseded   metric.Int64Counter
	failed       metric.Int64Counter
	keyAttr      attribute.KeyValue
}

// New creates a Mirror and starts its writer goroutine.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(s store.Store, key string, logger Logger, opts ...Option) (*Mirror, error) {
	m := &Mirror{
		store:   s,
		key:     key,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		keyAttr: attribute.String("key", key),
	}
	for _, opt := range opts {
		opt(&m.cfg)
	}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}

	go m.loop()
	return m, nil
}

func (m *Mirror) initMetrics() error {
	mt := meter()
	var err error

	m.pendingGauge, err = mt.Int64ObservableGauge(
		"mirror.pending",
		metric.WithDescription("Snapshots waiting to be written"),
	)
	if err != nil {
		return fmt.Errorf("creating pending gauge: %w", err)
	}
	_, err = mt.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			var n int64
			if m.pending != nil {
				n = 1
			}
			o.ObserveInt64(m.pendingGauge, n, metric.WithAttributes(m.keyAttr))
			return nil
		},
		m.pendingGauge,
	)
	if err != nil {
		return fmt.Errorf("registering pending callback: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.submitted, "mirror.writes.submitted", "Snapshots submitted for background write"},
		{&m.completed, "mirror.writes.completed", "Snapshots written to the store"},
		{&m.superseded, "mirror.writes.superseded", "Snapshots skipped because a newer one replaced them"},
		{&m.failed, "mirror.writes.failed", "Snapshot writes rejected by the store"},
	}
	for _, c := range counters {
		*c.dst, err = mt.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	return nil
}

// Key returns the store key the mirror writes.
func (m *Mirror) Key() string {
	return m.key
}

// Load reads the last persisted state.
func (m *Mirror) Load(ctx context.Context) (core.PersistedState, bool, error) {
	var state core.PersistedState
	ok, err := m.store.Get(ctx, m.key, &state)
	if err != nil {
		return core.PersistedState{}, false, err
	}
	return state, ok, nil
}

// Submit queues state for a background write and returns immediately. Only
// the newest pending snapshot is kept.
func (m *Mirror) Submit(state core.PersistedState) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("mirror closed, dropping snapshot", "key", m.key)
		return
	}
	j := &job{seq: m.orderLocked(state), state: state}
	switch {
	case m.pending == nil:
		m.pending = j
	case m.pending.seq > j.seq:
		m.superseded.Add(context.Background(), 1, metric.WithAttributes(m.keyAttr))
	default:
		m.superseded.Add(context.Background(), 1, metric.WithAttributes(m.keyAttr))
		m.pending = j
	}
	m.mu.Unlock()

	m.submitted.Add(context.Background(), 1, metric.WithAttributes(m.keyAttr))

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// WriteNow writes state synchronously. A pending background snapshot older
// than state is dropped. A newer pending snapshot is written in its place.
func (m *Mirror) WriteNow(ctx context.Context, state core.PersistedState) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	j := &job{seq: m.orderLocked(state), state: state}
	if m.pending != nil {
		if m.pending.seq > j.seq {
			j = m.pending
		}
		m.pending = nil
		m.superseded.Add(ctx, 1, metric.WithAttributes(m.keyAttr))
	}
	m.mu.Unlock()

	return m.writeLocked(ctx, j)
}

// orderLocked returns the write order of state. Snapshots that carry their
// own sequence keep it, others are numbered on arrival.
func (m *Mirror) orderLocked(state core.PersistedState) uint64 {
	if state.Seq == 0 {
		m.seq++
		return m.seq
	}
	if state.Seq > m.seq {
		m.seq = state.Seq
	}
	return state.Seq
}

// Flush writes any pending snapshot and waits for an in-flight write.
func (m *Mirror) Flush(ctx context.Context) error {
	return m.drain(ctx)
}

// Close stops the writer after flushing pending work.
func (m *Mirror) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		close(m.quit)
		<-m.done
		err = m.Flush(context.Background())
	})
	return err
}

func (m *Mirror) take() *job {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.pending
	m.pending = nil
	return j
}

func (m *Mirror) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case <-m.wake:
		}

		if err := m.drain(context.Background()); err != nil && m.cfg.onError != nil {
			m.cfg.onError(err)
		}
	}
}

// drain takes the pending snapshot under writeMu, so holding writeMu means no
// taken snapshot is still unwritten.
func (m *Mirror) drain(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	j := m.take()
	if j == nil {
		return nil
	}
	return m.writeLocked(ctx, j)
}

func (m *Mirror) writeLocked(ctx context.Context, j *job) error {
	if j.seq <= m.landed {
		m.superseded.Add(ctx, 1, metric.WithAttributes(m.keyAttr))
		return nil
	}

	start := time.Now()
	if m.cfg.logged {
		m.logger.Debug("writing snapshot", "key", m.key, "seq", j.seq, "tracks", len(j.state.Tracks))
	}

	if err := m.store.Set(ctx, m.key, j.state); err != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(m.keyAttr))
		m.logger.Error("snapshot write failed", "key", m.key, "seq", j.seq, "error", err)
		return fmt.Errorf("persist %s: %w", m.key, err)
	}

	m.landed = j.seq
	m.completed.Add(ctx, 1, metric.WithAttributes(m.keyAttr))
	if m.cfg.logged {
		m.logger.Debug("snapshot written", "key", m.key, "seq", j.seq, "duration", time.Since(start))
	}
	return nil
}
