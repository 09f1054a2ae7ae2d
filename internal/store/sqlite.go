package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection that backs persisted client state.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode.
func Open(dbPath string) (*DB, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS kv (
  namespace TEXT PRIMARY KEY,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS embedding_cache (
  content_hash TEXT NOT NULL,
  model TEXT NOT NULL,
  embedding BLOB NOT NULL,
  dimension INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (content_hash, model)
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema changes. Each migration is
// idempotent so it is safe to call on every open.
func runMigrations(db *sql.DB) error {
	hasVersion, err := columnExists(db, "kv", "version")
	if err != nil {
		return fmt.Errorf("check version column: %w", err)
	}
	if !hasVersion {
		migrations := []string{
			`ALTER TABLE kv ADD COLUMN version INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE kv ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`,
		}
		for _, m := range migrations {
			if _, err := db.Exec(m); err != nil {
				return fmt.Errorf("run migration v1: %w", err)
			}
		}
	}
	return nil
}

// Get returns the value stored under namespace. ok is false when nothing has
// been written yet.
func (db *DB) Get(namespace string) (value string, version int, ok bool, err error) {
	err = db.QueryRow(`SELECT value, version FROM kv WHERE namespace = ?`, namespace).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("get %s: %w", namespace, err)
	}
	return value, version, true, nil
}

// Put upserts the value stored under namespace.
func (db *DB) Put(namespace, value string, version int) error {
	_, err := db.Exec(`
		INSERT INTO kv (namespace, value, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, version = excluded.version, updated_at = excluded.updated_at
	`, namespace, value, version, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put %s: %w", namespace, err)
	}
	return nil
}

// Remove deletes namespace. Removing a missing namespace is not an error.
func (db *DB) Remove(namespace string) error {
	if _, err := db.Exec(`DELETE FROM kv WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("remove %s: %w", namespace, err)
	}
	return nil
}

// columnExists checks if a column exists in a table. It closes the rows cursor
// before returning, avoiding deadlocks with MaxOpenConns(1).
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(
		fmt.Sprintf("SELECT name FROM pragma_table_info('%s') WHERE name = ?", table),
		column,
	)
	if err != nil {
		return false, err
	}
	found := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}
