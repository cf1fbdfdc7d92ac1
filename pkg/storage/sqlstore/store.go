// Package sqlstore keeps the world state in a single world_state table reachable
// through database/sql. It runs on the in-memory memorydriver, modernc.org/sqlite
// and mattn/go-sqlite3 alike.
package sqlstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"agrichain/pkg/storage"
	"agrichain/pkg/storage/memorydriver"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Store persists namespaced keys through database/sql so storage backends stay swappable.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New wraps an open handle and makes sure the schema exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Open connects to the backend named by typ. For the SQLite backends path is the
// database file; for memory it is an optional snapshot file whose write failures
// are logged to logger.
func Open(ctx context.Context, typ, path string, logger *zap.Logger) (*Store, error) {
	var db *sql.DB
	switch typ {
	case storage.TypeMemory:
		connector, err := memorydriver.NewConnector(path, logger)
		if err != nil {
			return nil, errors.Wrap(err, "unable to start memory driver")
		}
		db = sql.OpenDB(connector)
	case storage.TypeSQLite, storage.TypeSQLite3:
		if path == "" {
			return nil, errors.Errorf("%s storage requires a path", typ)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "unable to create directory for %s", path)
		}
		opened, err := sql.Open(typ, path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open %s database at %s", typ, path)
		}
		// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY churn.
		opened.SetMaxOpenConns(1)
		opened.SetMaxIdleConns(1)
		db = opened
	default:
		return nil, errors.Errorf("unsupported sql storage type %s", typ)
	}

	if typ != storage.TypeMemory {
		for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, errors.Wrapf(err, "unable to apply %q", pragma)
			}
		}
	}

	store, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema executes CREATE TABLE statements so external databases get the right layout.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS world_state (
                        namespace TEXT NOT NULL,
                        key TEXT NOT NULL,
                        value BLOB,
                        PRIMARY KEY (namespace, key)
                )`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "unable to ensure world_state schema")
	}
	return nil
}

// Get returns the value stored under key, or nil when the key is absent.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM world_state WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%q", namespace, key)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Put inserts or replaces the value under key.
func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	query := "INSERT INTO world_state (namespace, key, value) VALUES (?, ?, ?) ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value"
	if _, err := s.db.ExecContext(ctx, query, namespace, key, value); err != nil {
		return errors.Wrapf(err, "put %s/%q", namespace, key)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM world_state WHERE namespace = ? AND key = ?", namespace, key); err != nil {
		return errors.Wrapf(err, "delete %s/%q", namespace, key)
	}
	return nil
}

// Scan lists every key in namespace starting with prefix, ordered by key.
func (s *Store) Scan(ctx context.Context, namespace, prefix string) ([]storage.KV, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if end := storage.PrefixEnd(prefix); end != "" {
		rows, err = s.db.QueryContext(ctx, "SELECT key, value FROM world_state WHERE namespace = ? AND key >= ? AND key < ? ORDER BY key", namespace, prefix, end)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT key, value FROM world_state WHERE namespace = ? AND key >= ? ORDER BY key", namespace, prefix)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s/%q", namespace, prefix)
	}
	defer rows.Close()

	var out []storage.KV
	for rows.Next() {
		var kv storage.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, errors.Wrapf(err, "scan %s/%q", namespace, prefix)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s/%q", namespace, prefix)
	}
	return out, nil
}

// Close releases the handle; for the memory backend this also flushes the snapshot.
func (s *Store) Close() error {
	return s.db.Close()
}
