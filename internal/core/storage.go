package core

import (
	"agrorec/internal/infra/persistence/memory"
	"agrorec/internal/infra/persistence/postgres"
	"agrorec/internal/infra/persistence/sqlite"
	"agrorec/pkg/domain"
	"fmt"
	"time"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// StorageOptions selects and configures the local store backend.
type StorageOptions struct {
	Driver      StorageDriver // default sqlite
	SQLitePath  string        // default sqlite.DefaultPath
	PostgresDSN string        // default postgres.DefaultDSN
	Now         func() time.Time
}

// OpenPersistentStore opens the configured backend and upgrades its data to
// the current schema. Open failures wrap domain.ErrStorageUnavailable;
// callers may fall back to UnavailableStore.
func OpenPersistentStore(engine *RulesEngine, opts StorageOptions) (PersistentStore, error) {
	var memOpts []memory.Option
	if opts.Now != nil {
		memOpts = append(memOpts, memory.WithClock(opts.Now))
	}
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, memOpts...), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath, engine, memOpts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(opts.PostgresDSN, engine, memOpts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenOrDegrade is OpenPersistentStore that never fails: an unavailable
// store is replaced by UnavailableStore carrying the error.
func OpenOrDegrade(engine *RulesEngine, opts StorageOptions) (PersistentStore, error) {
	store, err := OpenPersistentStore(engine, opts)
	if err != nil {
		return UnavailableStore{Cause: err}, err
	}
	return store, nil
}
