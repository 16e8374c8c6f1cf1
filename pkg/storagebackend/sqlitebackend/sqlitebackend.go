// Package sqlitebackend adapts modernc.org/sqlite (the pure-Go SQLite
// driver, used in place of the teacher's cgo-based mattn/go-sqlite3 so the
// whole module stays cgo-free) into a wbrbcache.Storage[string, S]
// implementation, following the same table-plus-JSON-value shape as
// pkg/storagebackend/postgres.
package sqlitebackend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

// Config controls how the backend opens its SQLite file.
type Config struct {
	// Path is the sqlite file path, or ":memory:" for an ephemeral store.
	Path string
}

func DefaultConfig() Config {
	return Config{Path: "wbrbcache.db"}
}

// Backend is a wbrbcache.Storage[string, S] backed by a local SQLite
// database. Intended for single-process deployments and local development,
// where a full PostgreSQL/Redis dependency is unwarranted.
type Backend[S any] struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite file and ensures the wbrb_kv table exists.
func New[S any](ctx context.Context, cfg Config, logger *slog.Logger) (*Backend[S], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("sqlitebackend: Path must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: open: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under the cache's
	// concurrent write-queue workers; reads are cheap enough to share it.
	db.SetMaxOpenConns(1)

	const ddl = `CREATE TABLE IF NOT EXISTS wbrb_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitebackend: create table: %w", err)
	}

	logger.Info("opened sqlite storage backend", "path", cfg.Path)
	return &Backend[S]{db: db, logger: logger}, nil
}

// Read implements wbrbcache.Storage.
func (b *Backend[S]) Read(ctx context.Context, key string) (S, error) {
	var zero S
	var raw string

	err := b.db.QueryRowContext(ctx, `SELECT value FROM wbrb_kv WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, wbrbcache.ErrCacheElementFailedLoading
		}
		b.logger.Error("sqlite read failed", "key", key, "error", err)
		return zero, fmt.Errorf("sqlitebackend: read %q: %w", key, err)
	}

	var v S
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, fmt.Errorf("sqlitebackend: unmarshal %q: %w", key, err)
	}
	return v, nil
}

// Write implements wbrbcache.Storage.
func (b *Backend[S]) Write(ctx context.Context, key string, value S) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sqlitebackend: marshal %q: %w", key, err)
	}

	const upsert = `
		INSERT INTO wbrb_kv (key, value, updated_at_ms) VALUES (?, ?, unixepoch('now') * 1000)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ms = excluded.updated_at_ms`
	if _, err := b.db.ExecContext(ctx, upsert, key, string(data)); err != nil {
		b.logger.Error("sqlite write failed", "key", key, "error", err)
		return fmt.Errorf("sqlitebackend: write %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *Backend[S]) Close() error {
	return b.db.Close()
}
