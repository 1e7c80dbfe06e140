package gormkv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/database"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
)

func newTestBackend(t *testing.T, maxPageCount int) *Backend {
	t.Helper()
	db, err := database.OpenSQLite("", maxPageCount)
	require.NoError(t, err)

	b := New(db)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestReadWriteRemove(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, 0)
	assert.Equal(t, "sqlite", b.Name())

	_, err := b.Read(ctx, "forage-state")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, b.Write(ctx, "forage-state", []byte(`{"tracks":[]}`)))
	require.NoError(t, b.Write(ctx, "forage-state", []byte(`{"tracks":[{"id":"a"}]}`)))

	data, err := b.Read(ctx, "forage-state")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tracks":[{"id":"a"}]}`, string(data))

	var count int64
	require.NoError(t, b.db.Model(&Entry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, b.Remove(ctx, "forage-state"))
	require.NoError(t, b.Remove(ctx, "forage-state"))
	_, err = b.Read(ctx, "forage-state")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWrite_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	// a handful of pages holds the schema but not a large value
	b := newTestBackend(t, 8)

	big := `"` + strings.Repeat("x", 256*1024) + `"`
	err := b.Write(ctx, "forage-state", []byte(big))
	require.Error(t, err)
	assert.True(t, store.IsQuota(err), "expected quota error, got %v", err)

	// small values still fit
	require.NoError(t, b.Write(ctx, "small", []byte(`1`)))
}

func TestClassify(t *testing.T) {
	assert.True(t, store.IsQuota(classify("write", errors.New("database or disk is full (13)"))))
	assert.True(t, store.IsQuota(classify("write", errors.New("ERROR: could not extend file (SQLSTATE 53100)"))))
	assert.ErrorIs(t, classify("read", errors.New("connection refused")), store.ErrUnavailable)
}
