package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/config"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/database"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store/filekv"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store/gormkv"
	"github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/store/memory"
)

// storage is the durable store plus the database it may sit on.
type storage struct {
	tiered *store.Tiered
	db     *database.Manager // nil unless the primary tier is a database
}

func openStorage(storeCfg config.StoreConfig, dbCfg config.DBConfig, log zerolog.Logger) (*storage, error) {
	s := &storage{}

	primary, err := s.createPrimary(storeCfg, dbCfg, log)
	if err != nil {
		return nil, err
	}

	fallback, err := createFallback(storeCfg)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}

	s.tiered = store.NewTiered(primary, fallback, log)
	log.Info().
		Str("primary", primary.Name()).
		Str("fallback", storeCfg.Fallback).
		Str("key", storeCfg.Key).
		Msg("Storage initialized")
	return s, nil
}

func (s *storage) createPrimary(storeCfg config.StoreConfig, dbCfg config.DBConfig, log zerolog.Logger) (store.Backend, error) {
	switch storeCfg.Primary {
	case "memory":
		return memory.New("memory", storeCfg.MemoryMaxBytes), nil

	case "sqlite", "postgres":
		m := database.NewManager(log)
		m.SqliteFilePath = storeCfg.SQLite.Path
		m.MaxPageCount = storeCfg.SQLite.MaxPageCount

		var err error
		if storeCfg.Primary == "postgres" {
			err = m.Connect(dbCfg)
		} else {
			err = m.ConnectSQLite()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		backend := gormkv.New(m.DB)
		if err := backend.Init(); err != nil {
			_ = m.Close()
			return nil, err
		}
		s.db = m
		return backend, nil
	}
	return nil, fmt.Errorf("unknown primary store %q", storeCfg.Primary)
}

func createFallback(storeCfg config.StoreConfig) (store.Backend, error) {
	switch storeCfg.Fallback {
	case "file":
		b, err := filekv.New(storeCfg.File.Dir, storeCfg.File.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create file fallback: %w", err)
		}
		return b, nil
	case "memory":
		return memory.New("memory-fallback", storeCfg.MemoryMaxBytes), nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown fallback store %q", storeCfg.Fallback)
}

// backup writes a consistent copy of the SQLite primary to path.
func (s *storage) backup(path string) error {
	if s.db == nil {
		return fmt.Errorf("backup needs a database primary store")
	}
	return s.db.DumpToDisk(path)
}

func (s *storage) close() error {
	return s.tiered.Close()
}
