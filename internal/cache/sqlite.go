// Package cache provides artifact stores for pipeline stage outputs: a
// SQLite-backed store that survives process restarts and an in-memory store
// for tests.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"redcube/internal/logging"
	"redcube/internal/workflow"
)

// SQLiteCache persists stage outputs in a single local database file.
// Writes are last-writer-wins per (stage, key); a corrupt or unreadable row
// is reported as a miss so the caller regenerates.
type SQLiteCache struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteCache opens (or creates) the cache database at path and prepares
// the schema.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS stage_outputs (
		stage      TEXT NOT NULL,
		cache_key  TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (stage, cache_key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get looks up a cached stage output. A missing row, a scan error, or an
// undecodable payload all report (zero, false): the cache never fails a
// read loudly.
func (c *SQLiteCache) Get(stage, key string) (workflow.StageOutput, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var payload string
	err := c.db.QueryRow(
		"SELECT payload FROM stage_outputs WHERE stage = ? AND cache_key = ?",
		stage, key,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return workflow.StageOutput{}, false, nil
	}
	if err != nil {
		return workflow.StageOutput{}, false, fmt.Errorf("read cache row: %w", err)
	}

	var out workflow.StageOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		logging.CacheWarn("%s: corrupt cache payload (key=%.12s), treating as miss: %v", stage, key, err)
		return workflow.StageOutput{}, false, nil
	}
	return out, true, nil
}

// Put stores a stage output, replacing any prior entry for the same
// (stage, key) pair.
func (c *SQLiteCache) Put(stage, key string, out workflow.StageOutput) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode stage output: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO stage_outputs (stage, cache_key, payload, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)",
		stage, key, string(payload),
	)
	if err != nil {
		return fmt.Errorf("write cache row: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
