// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// Pure Go SQLite driver (no CGO required)
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultHistoryDepth is how many previous revisions of each key are kept.
const DefaultHistoryDepth = 5

// =============================================================================
// SQLITE BACKEND
// =============================================================================

// SQLiteBackend stores documents in a single SQLite database and keeps a
// short history of previous revisions per key.
type SQLiteBackend struct {
	db           *sql.DB
	path         string
	historyDepth int
}

// Revision is one saved version of a document.
type Revision struct {
	ID      int64
	Key     string
	Data    []byte
	SavedAt time.Time
}

// NewSQLiteBackend opens (or creates) the database at path and applies
// pending schema migrations.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteBackend{
		db:           db,
		path:         path,
		historyDepth: DefaultHistoryDepth,
	}, nil
}

// migrateUp applies the embedded migrations. The migrate instance is not
// closed because that would close db as well.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Load implements Backend.
func (b *SQLiteBackend) Load(key string) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow(`SELECT value FROM documents WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save implements Backend. The replaced value is moved into the history
// table and history beyond the configured depth is pruned.
func (b *SQLiteBackend) Save(key string, data []byte) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if b.historyDepth > 0 {
		_, err = tx.Exec(`
			INSERT INTO document_history (key, value, saved_at)
			SELECT key, value, updated_at FROM documents WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("archive revision: %w", err)
		}
		_, err = tx.Exec(`
			DELETE FROM document_history
			WHERE key = ? AND id NOT IN (
				SELECT id FROM document_history WHERE key = ? ORDER BY id DESC LIMIT ?
			)`, key, key, b.historyDepth)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// History returns previous revisions of key, newest first.
func (b *SQLiteBackend) History(key string) ([]Revision, error) {
	rows, err := b.db.Query(`
		SELECT id, key, value, saved_at FROM document_history
		WHERE key = ? ORDER BY id DESC`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		var rev Revision
		var savedAt string
		if err := rows.Scan(&rev.ID, &rev.Key, &rev.Data, &savedAt); err != nil {
			return nil, err
		}
		rev.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// Revision returns one archived revision of key, or ErrNotFound.
func (b *SQLiteBackend) Revision(key string, id int64) (Revision, error) {
	rev := Revision{ID: id, Key: key}
	var savedAt string
	err := b.db.QueryRow(`
		SELECT value, saved_at FROM document_history
		WHERE key = ? AND id = ?`, key, id).Scan(&rev.Data, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrNotFound
	}
	if err != nil {
		return Revision{}, err
	}
	rev.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	return rev, nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
