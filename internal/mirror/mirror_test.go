package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store/memory"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) { l.add("DEBUG", msg, keysAndValues) }
func (l *testLogger) Info(msg string, keysAndValues ...any)  { l.add("INFO", msg, keysAndValues) }
func (l *testLogger) Error(msg string, keysAndValues ...any) { l.add("ERROR", msg, keysAndValues) }

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

// recordingStore remembers every snapshot in write order.
type recordingStore struct {
	mu     sync.Mutex
	writes []core.PersistedState
	delay  time.Duration
	fail   error
}

func (s *recordingStore) Get(_ context.Context, _ string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return false, nil
	}
	*(out.(*core.PersistedState)) = s.writes[len(s.writes)-1]
	return true, nil
}

func (s *recordingStore) Set(_ context.Context, _ string, value any) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.writes = append(s.writes, value.(core.PersistedState))
	return nil
}

func (s *recordingStore) Delete(context.Context, string) error { return nil }

func (s *recordingStore) snapshot() []core.PersistedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PersistedState(nil), s.writes...)
}

func stateWith(n int) core.PersistedState {
	tracks := make([]core.Track, n)
	for i := range tracks {
		tracks[i] = core.Track{ID: fmt.Sprintf("t%d", i)}
	}
	return core.PersistedState{Tracks: tracks}
}

func newTestMirror(t *testing.T, s store.Store, opts ...Option) *Mirror {
	t.Helper()
	m, err := New(s, "forage-state", &testLogger{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSubmit_WritesInBackground(t *testing.T) {
	s := &recordingStore{}
	m := newTestMirror(t, s)

	m.Submit(stateWith(1))
	require.NoError(t, m.Flush(context.Background()))

	writes := s.snapshot()
	require.NotEmpty(t, writes)
	assert.Len(t, writes[len(writes)-1].Tracks, 1)
}

func TestSubmit_NewestWins(t *testing.T) {
	s := &recordingStore{delay: 5 * time.Millisecond}
	m := newTestMirror(t, s)

	for i := 1; i <= 20; i++ {
		m.Submit(stateWith(i))
	}
	require.NoError(t, m.Flush(context.Background()))

	writes := s.snapshot()
	require.NotEmpty(t, writes)
	assert.Less(t, len(writes), 20, "pending snapshots are coalesced")
	assert.Len(t, writes[len(writes)-1].Tracks, 20)

	// writes land in submission order
	for i := 1; i < len(writes); i++ {
		assert.Greater(t, len(writes[i].Tracks), len(writes[i-1].Tracks))
	}
}

func TestWriteNow_SupersedesPending(t *testing.T) {
	s := &recordingStore{delay: 10 * time.Millisecond}
	m := newTestMirror(t, s)

	m.Submit(stateWith(1))
	m.Submit(stateWith(2))
	require.NoError(t, m.WriteNow(context.Background(), stateWith(3)))
	require.NoError(t, m.Flush(context.Background()))

	writes := s.snapshot()
	require.NotEmpty(t, writes)
	assert.Len(t, writes[len(writes)-1].Tracks, 3, "older snapshot must not land after WriteNow")
}

func TestWriteNow_ReturnsStoreError(t *testing.T) {
	s := &recordingStore{fail: store.ErrQuotaExceeded}
	m := newTestMirror(t, s)

	err := m.WriteNow(context.Background(), stateWith(1))
	require.Error(t, err)
	assert.True(t, store.IsQuota(err))
}

func TestSubmit_ReportsBackgroundErrors(t *testing.T) {
	s := &recordingStore{fail: errors.New("disk")}
	errs := make(chan error, 4)
	m := newTestMirror(t, s, OnError(func(err error) { errs <- err }))

	m.Submit(stateWith(1))

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "disk")
	case <-time.After(time.Second):
		t.Fatal("expected background error")
	}
}

func TestLoad(t *testing.T) {
	tiers := store.NewTiered(memory.New("primary", 0), nil, zerolog.Nop())
	m := newTestMirror(t, tiers)

	_, ok, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	state := core.PersistedState{Tracks: []core.Track{{ID: "a", StartTime: start}}}
	require.NoError(t, m.WriteNow(context.Background(), state))

	got, ok, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got.Tracks, 1)
	assert.True(t, start.Equal(got.Tracks[0].StartTime))
	assert.Equal(t, "forage-state", m.Key())
}

func TestClose_FlushesAndRejects(t *testing.T) {
	s := &recordingStore{delay: 5 * time.Millisecond}
	m, err := New(s, "forage-state", &testLogger{}, Logged())
	require.NoError(t, err)

	m.Submit(stateWith(1))
	m.Submit(stateWith(2))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	writes := s.snapshot()
	require.NotEmpty(t, writes)
	assert.Len(t, writes[len(writes)-1].Tracks, 2)

	m.Submit(stateWith(3))
	assert.Len(t, s.snapshot(), len(writes))
}

func TestWriteNow_OlderSnapshotKeepsNewerPending(t *testing.T) {
	s := &recordingStore{delay: 10 * time.Millisecond}
	m := newTestMirror(t, s)

	// keep the writer busy so the next submit stays pending
	m.Submit(stateWith(1))
	time.Sleep(2 * time.Millisecond)

	newer := stateWith(5)
	newer.Seq = 5
	older := stateWith(4)
	older.Seq = 4
	m.Submit(newer)
	require.NoError(t, m.WriteNow(context.Background(), older))
	require.NoError(t, m.Flush(context.Background()))

	writes := s.snapshot()
	require.NotEmpty(t, writes)
	assert.Len(t, writes[len(writes)-1].Tracks, 5, "a snapshot taken later must win")
}

func TestSubmit_OutOfOrderSnapshotIsSkipped(t *testing.T) {
	s := &recordingStore{}
	m := newTestMirror(t, s)

	newer := stateWith(2)
	newer.Seq = 9
	require.NoError(t, m.WriteNow(context.Background(), newer))

	stale := stateWith(1)
	stale.Seq = 3
	m.Submit(stale)
	require.NoError(t, m.Flush(context.Background()))

	writes := s.snapshot()
	require.Len(t, writes, 1)
	assert.Len(t, writes[0].Tracks, 2)
}
