// Package sqlite provides the embedded durable local store. It reuses the
// in-memory implementation for transactions and snapshots every collection to
// a single SQLite table after each successful commit.
package sqlite

import (
	"agrorec/internal/infra/persistence/memory"
	"agrorec/pkg/domain"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "agrorec.db"

const schemaVersionKey = "schema_version"

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path, applies the schema ladder
// to any stored data, and hydrates the in-memory state from it. Failures are
// reported as domain.ErrStorageUnavailable.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, unavailable(fmt.Errorf("create dirs: %w", err))
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable(fmt.Errorf("open sqlite: %w", err))
	}
	s := &Store{Store: memory.NewStore(engine, opts...), db: db, path: path}
	if err := s.open(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func unavailable(err error) error {
	return domain.StorageUnavailableError{Cause: err}
}

func (s *Store) open(ctx context.Context) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return unavailable(fmt.Errorf("create tables: %w", err))
		}
	}
	stored, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}
	snapshot, err := s.load(ctx)
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

func (s *Store) storedVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = ?`, schemaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(fmt.Errorf("read schema version: %w", err))
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, unavailable(fmt.Errorf("parse schema version %q: %w", raw, err))
	}
	return version, nil
}

func (s *Store) load(ctx context.Context) (memory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
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
			return memory.Snapshot{}, unavailable(fmt.Errorf("scan: %w", err))
		}
		target, ok := targets[bucket]
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return memory.Snapshot{}, unavailable(fmt.Errorf("decode %s: %w", bucket, err))
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, unavailable(fmt.Errorf("iterate state: %w", err))
	}
	return snapshot, nil
}

// persist writes snapshot in one SQL transaction. Commits are serialized by
// the embedded store's write lock.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	buckets := snapshot.Buckets()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.BucketNames() {
		data, err := json.Marshal(buckets[bucket])
		if err != nil {
			return unavailable(fmt.Errorf("encode %s: %w", bucket, err))
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return unavailable(fmt.Errorf("upsert %s: %w", bucket, err))
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_meta(key,value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, schemaVersionKey, strconv.Itoa(snapshot.Version)); err != nil {
		return unavailable(fmt.Errorf("write schema version: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return unavailable(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// RunInTransaction applies fn to a copy of the state and writes the result
// to SQLite before it becomes visible. A failed write leaves both memory and
// disk at the previous state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
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

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
