// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	schemaCaches = `
		CREATE TABLE IF NOT EXISTS caches (
			name       TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`

	schemaEntries = `
		CREATE TABLE IF NOT EXISTS cache_entries (
			cache_name TEXT NOT NULL,
			url        TEXT NOT NULL,
			status     INTEGER NOT NULL,
			header     TEXT NOT NULL,
			body       BLOB NOT NULL,
			stored_at  INTEGER NOT NULL,
			PRIMARY KEY (cache_name, url)
		)`

	cacheEnsure = `
		INSERT OR IGNORE INTO caches (name, created_at) VALUES (?, ?)`

	cacheExists = `
		SELECT 1 FROM caches WHERE name = ?`

	cacheNames = `
		SELECT name FROM caches ORDER BY name ASC`

	cacheDeleteEntries = `
		DELETE FROM cache_entries WHERE cache_name = ?`

	cacheDelete = `
		DELETE FROM caches WHERE name = ?`

	entryGet = `
		SELECT status, header, body, stored_at FROM cache_entries
		WHERE cache_name = ? AND url = ?`

	entryPut = `
		INSERT INTO cache_entries (cache_name, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_name, url) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at`

	entryDelete = `
		DELETE FROM cache_entries WHERE cache_name = ? AND url = ?`

	entryKeys = `
		SELECT url FROM cache_entries WHERE cache_name = ? ORDER BY url ASC`
)

// SQLite keeps every cache in one SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Background cache writes and request lookups share the database; a single
	// connection keeps SQLite from reporting SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{schemaCaches, schemaEntries} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Open(ctx context.Context, name string) (Cache, error) {
	if _, err := s.db.ExecContext(ctx, cacheEnsure, name, time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	return &sqliteCache{db: s.db, name: name}, nil
}

func (s *SQLite) Get(ctx context.Context, name string) (Cache, error) {
	var one int
	err := s.db.QueryRowContext(ctx, cacheExists, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	return &sqliteCache{db: s.db, name: name}, nil
}

func (s *SQLite) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, cacheNames)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, cacheDeleteEntries, name); err != nil {
		return false, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, cacheDelete, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteCache struct {
	db   *sql.DB
	name string
}

func (c *sqliteCache) Name() string { return c.name }

func (c *sqliteCache) Match(ctx context.Context, key Key) (*Entry, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx, entryGet, c.name, string(key)).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var h http.Header
	if err := json.Unmarshal([]byte(header), &h); err != nil {
		return nil, fmt.Errorf("failed to decode cached header: %w", err)
	}

	return &Entry{
		URL:      string(key),
		Status:   status,
		Header:   h,
		Body:     body,
		StoredAt: time.Unix(0, storedAt).UTC(),
	}, nil
}

func (c *sqliteCache) Put(ctx context.Context, key Key, entry *Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Keep the cache listed even if it was deleted after this handle was opened.
	if _, err := tx.ExecContext(ctx, cacheEnsure, c.name, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to open cache %s: %w", c.name, err)
	}
	if _, err := tx.ExecContext(ctx, entryPut,
		c.name, string(key), entry.Status, string(header), body, entry.StoredAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (c *sqliteCache) Delete(ctx context.Context, key Key) (bool, error) {
	res, err := c.db.ExecContext(ctx, entryDelete, c.name, string(key))
	if err != nil {
		return false, fmt.Errorf("failed to delete cache entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *sqliteCache) Keys(ctx context.Context) ([]Key, error) {
	rows, err := c.db.QueryContext(ctx, entryKeys, c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache %s: %w", c.name, err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		keys = append(keys, Key(url))
	}
	return keys, rows.Err()
}
