// Package gormkv implements store.Backend as a key/value table on any gorm
// dialect. SQLite is the embedded default; Postgres works unchanged.
package gormkv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
)

// Entry is one stored value.
type Entry struct {
	Key       string         `gorm:"primaryKey;size:191"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (Entry) TableName() string {
	return "kv_entries"
}

// Backend stores entries through gorm.
type Backend struct {
	db *gorm.DB
}

var _ store.Backend = (*Backend)(nil)

// New creates a backend on db. Call Init before use.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init migrates the entries table.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("failed to migrate kv_entries: %w", err)
	}
	return nil
}

// Name returns the dialect name, e.g. "sqlite" or "postgres".
func (b *Backend) Name() string {
	return b.db.Dialector.Name()
}

// Read returns the value at key.
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	var e Entry
	err := b.db.WithContext(ctx).Where(&Entry{Key: key}).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, classify("read", err)
	}
	return []byte(e.Value), nil
}

// Write upserts key inside a transaction.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	entry := Entry{
		Key:       key,
		Value:     datatypes.JSON(data),
		UpdatedAt: time.Now().UTC(),
	}
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
	})
	if err != nil {
		return classify("write", err)
	}
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (b *Backend) Remove(ctx context.Context, key string) error {
	err := b.db.WithContext(ctx).Where(&Entry{Key: key}).Delete(&Entry{}).Error
	if err != nil {
		return classify("remove", err)
	}
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify maps dialect errors onto the store taxonomy. SQLite reports a hit
// on max_page_count or a full disk as SQLITE_FULL; Postgres uses SQLSTATE 53100.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database or disk is full"),
		strings.Contains(msg, "sqlite_full"),
		strings.Contains(msg, "53100"),
		strings.Contains(msg, "no space left on device"):
		return fmt.Errorf("%w: %s: %v", store.ErrQuotaExceeded, op, err)
	}
	return fmt.Errorf("%w: %s: %v", store.ErrUnavailable, op, err)
}
