package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store/memory"
)

type record struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

func newTiers(primaryQuota, fallbackQuota int64) (*memory.Backend, *memory.Backend, *store.Tiered) {
	primary := memory.New("primary", primaryQuota)
	fallback := memory.New("fallback", fallbackQuota)
	return primary, fallback, store.NewTiered(primary, fallback, zerolog.Nop())
}

func TestTiered_WritesToPrimary(t *testing.T) {
	ctx := context.Background()
	primary, fallback, s := newTiers(0, 0)

	require.NoError(t, s.Set(ctx, "k", record{Name: "porcini"}))
	assert.True(t, primary.Has("k"))
	assert.False(t, fallback.Has("k"))
	assert.Equal(t, "primary", s.LastTier())

	var got record
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "porcini", got.Name)
}

func TestTiered_FallsBackOnQuota(t *testing.T) {
	ctx := context.Background()
	primary, fallback, s := newTiers(0, 0)

	require.NoError(t, s.Set(ctx, "k", record{Name: "small"}))
	primary.SetMaxBytes(4)

	require.NoError(t, s.Set(ctx, "k", record{Name: "too large for the primary"}))
	assert.Equal(t, "fallback", s.LastTier())
	assert.True(t, fallback.Has("k"))
	assert.False(t, primary.Has("k"), "stale primary copy must be removed")

	var got record
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "too large for the primary", got.Name)
}

func TestTiered_ReturnsToPrimaryAndClearsFallback(t *testing.T) {
	ctx := context.Background()
	primary, fallback, s := newTiers(0, 0)

	primary.SetAvailable(false)
	require.NoError(t, s.Set(ctx, "k", record{Name: "offline"}))
	assert.True(t, fallback.Has("k"))

	primary.SetAvailable(true)
	require.NoError(t, s.Set(ctx, "k", record{Name: "online"}))
	assert.True(t, primary.Has("k"))
	assert.False(t, fallback.Has("k"))
}

func TestTiered_ReadsFallbackWhenPrimaryUnavailable(t *testing.T) {
	ctx := context.Background()
	primary, _, s := newTiers(0, 0)

	primary.SetAvailable(false)
	require.NoError(t, s.Set(ctx, "k", record{Name: "kept"}))

	var got record
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "kept", got.Name)
}

func TestTiered_BothTiersExhausted(t *testing.T) {
	ctx := context.Background()
	_, _, s := newTiers(4, 4)

	err := s.Set(ctx, "k", record{Name: "nowhere to go"})
	require.Error(t, err)
	assert.True(t, store.IsQuota(err))

	ok, err := s.Get(ctx, "k", &record{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTiered_NoFallback(t *testing.T) {
	ctx := context.Background()
	primary := memory.New("primary", 4)
	s := store.NewTiered(primary, nil, zerolog.Nop())

	assert.True(t, store.IsQuota(s.Set(ctx, "k", record{Name: "big"})))
	ok, err := s.Get(ctx, "k", &record{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.Delete(ctx, "k"))
	assert.NoError(t, s.Close())
}

func TestTiered_GetMissing(t *testing.T) {
	_, _, s := newTiers(0, 0)
	ok, err := s.Get(context.Background(), "missing", &record{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTiered_GetBothUnavailable(t *testing.T) {
	primary, fallback, s := newTiers(0, 0)
	primary.SetAvailable(false)
	fallback.SetAvailable(false)

	_, err := s.Get(context.Background(), "k", &record{})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestTiered_Delete(t *testing.T) {
	ctx := context.Background()
	primary, fallback, s := newTiers(0, 0)
	require.NoError(t, s.Set(ctx, "k", record{Name: "x"}))

	require.NoError(t, s.Delete(ctx, "k"))
	assert.False(t, primary.Has("k"))
	assert.False(t, fallback.Has("k"))

	fallback.SetAvailable(false)
	err := s.Delete(ctx, "k")
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestTiered_TimestampRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, _, s := newTiers(0, 0)
	at := time.Date(2024, 10, 5, 7, 30, 15, 123456789, time.UTC)

	require.NoError(t, s.Set(ctx, "k", record{Name: "n", At: at}))

	var typed record
	_, err := s.Get(ctx, "k", &typed)
	require.NoError(t, err)
	assert.True(t, at.Equal(typed.At))

	var untyped map[string]any
	_, err = s.Get(ctx, "k", &untyped)
	require.NoError(t, err)
	ts, ok := untyped["at"].(time.Time)
	require.True(t, ok, "expected time.Time, got %T", untyped["at"])
	assert.True(t, at.Equal(ts))
	assert.Equal(t, "n", untyped["name"])
}

func TestTiered_GetDecodeError(t *testing.T) {
	ctx := context.Background()
	primary, _, s := newTiers(0, 0)
	require.NoError(t, primary.Write(ctx, "k", []byte("{broken")))

	_, err := s.Get(ctx, "k", &record{})
	assert.Error(t, err)
}

func TestTiered_StaleCopyLosesAfterPrimaryReturns(t *testing.T) {
	ctx := context.Background()
	primary, fallback, s := newTiers(0, 0)

	require.NoError(t, s.Set(ctx, "k", record{Name: "v1"}))
	primary.SetAvailable(false)
	require.NoError(t, s.Set(ctx, "k", record{Name: "v2"}))
	assert.True(t, fallback.Has("k"))

	primary.SetAvailable(true)
	assert.True(t, primary.Has("k"), "the unreachable primary kept its old copy")

	var got record
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", got.Name)

	require.NoError(t, s.Set(ctx, "k", record{Name: "v3"}))
	assert.False(t, fallback.Has("k"))
	_, err = s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.Equal(t, "v3", got.Name)
}

func TestTiered_ReadsUnversionedValue(t *testing.T) {
	ctx := context.Background()
	primary, _, s := newTiers(0, 0)
	require.NoError(t, primary.Write(ctx, "k", []byte(`{"name":"legacy"}`)))

	var got record
	ok, err := s.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "legacy", got.Name)
}

func TestTiered_BothTiersUnavailable(t *testing.T) {
	ctx := context.Background()
	primary, fallback, s := newTiers(0, 0)
	primary.SetAvailable(false)
	fallback.SetAvailable(false)

	err := s.Set(ctx, "k", record{Name: "offline"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, store.IsQuota(err), "an outage is not a full disk")
}

func TestTiered_UnknownFailureIsUnavailable(t *testing.T) {
	s := store.NewTiered(brokenBackend{}, nil, zerolog.Nop())

	err := s.Set(context.Background(), "k", record{Name: "x"})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.False(t, store.IsQuota(err))
	assert.ErrorContains(t, err, "disk on fire")
}

type brokenBackend struct{}

func (brokenBackend) Name() string { return "broken" }
func (brokenBackend) Read(context.Context, string) ([]byte, error) {
	return nil, store.ErrNotFound
}
func (brokenBackend) Write(context.Context, string, []byte) error {
	return errors.New("disk on fire")
}
func (brokenBackend) Remove(context.Context, string) error { return nil }
func (brokenBackend) Close() error                         { return nil }
