// Package postgres provides a Postgres-backed local store for shared or
// server-side deployments. It mirrors the in-memory semantics and snapshots
// each collection as a JSONB payload after every committed transaction.
package postgres

import (
	"agrorec/internal/infra/persistence/memory"
	"agrorec/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	DefaultDSN = "postgres://localhost/agrorec?sslmode=disable"

	schemaVersionKey = "schema_version"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to DefaultDSN).
// It ensures the snapshot tables exist, upgrades any stored snapshot to the
// current schema, and hydrates the in-memory store from it.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, unavailable(fmt.Errorf("open postgres: %w", err))
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable(fmt.Errorf("ping postgres: %w", err))
	}
	s := &Store{Store: memory.NewStore(engine, opts...), db: db}
	if err := s.open(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func unavailable(err error) error {
	return domain.StorageUnavailableError{Cause: err}
}

func (s *Store) open(ctx context.Context) error {
	if err := ensureTables(ctx, s.db); err != nil {
		return err
	}
	stored, err := loadVersion(ctx, s.db)
	if err != nil {
		return err
	}
	snapshot, err := loadSnapshot(ctx, s.db)
	if err != nil {
		return err
	}
	snapshot.Version = stored
	if err := s.ImportState(snapshot); err != nil {
		return err
	}
	if stored == domain.SchemaVersion {
		return nil
	}
	return s.persist(ctx, s.ExportState())
}

// RunInTransaction commits to Postgres first and publishes the new state in
// memory only once the SQL transaction succeeded.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, s.persist)
}

// ClearAll truncates every collection and persists the empty state.
func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tx.Clear()
		return nil
	})
	return err
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return unavailable(fmt.Errorf("ensure tables: %w", err))
		}
	}
	return nil
}

func loadVersion(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM schema_meta`)
	if err != nil {
		return 0, unavailable(fmt.Errorf("select schema_meta: %w", err))
	}
	defer func() { _ = rows.Close() }()
	version := 0
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return 0, unavailable(fmt.Errorf("scan schema_meta: %w", err))
		}
		if key != schemaVersionKey {
			continue
		}
		if version, err = strconv.Atoi(value); err != nil {
			return 0, unavailable(fmt.Errorf("parse schema version %q: %w", value, err))
		}
	}
	if err := rows.Err(); err != nil {
		return 0, unavailable(fmt.Errorf("iterate schema_meta: %w", err))
	}
	return version, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, unavailable(fmt.Errorf("select state: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := snapshot.Buckets()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, unavailable(fmt.Errorf("scan state: %w", err))
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, unavailable(fmt.Errorf("decode %s: %w", bucket, err))
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, unavailable(fmt.Errorf("iterate state: %w", err))
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	buckets := snapshot.Buckets()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Errorf("begin tx: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.BucketNames() {
		data, err := json.Marshal(buckets[bucket])
		if err != nil {
			return unavailable(fmt.Errorf("encode %s: %w", bucket, err))
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return unavailable(fmt.Errorf("upsert %s: %w", bucket, err))
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value`, schemaVersionKey, strconv.Itoa(snapshot.Version)); err != nil {
		return unavailable(fmt.Errorf("write schema version: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return unavailable(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
