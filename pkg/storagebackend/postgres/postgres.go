// Package postgres adapts jackc/pgx/v5's pgxpool into a
// wbrbcache.Storage[string, S] implementation, grounded on the teacher's
// internal/database/postgres connection-pool pattern. Values are stored as
// JSONB in a wbrb_kv table; every write also appends a row to wbrb_kv_audit
// so the write-behind history of a key can be inspected after the fact.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpostgres "github.com/vitaliisemenov/wbrbcache/internal/database/postgres"
	"github.com/vitaliisemenov/wbrbcache/internal/core/resilience"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

// sqlstateErrorChecker adapts dbpostgres's SQLSTATE-aware classification
// (DatabaseError.IsRetryable) into a resilience.RetryableErrorChecker, so
// retries of wbrb_kv writes are driven by the actual Postgres error code
// (serialization failures, deadlocks, connection churn) instead of the
// generic network/timeout heuristics resilience.DefaultErrorChecker falls
// back to for errors it doesn't recognize.
type sqlstateErrorChecker struct {
	fallback resilience.RetryableErrorChecker
}

func (c sqlstateErrorChecker) IsRetryable(err error) bool {
	var dbErr *dbpostgres.DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.IsRetryable()
	}
	return c.fallback.IsRetryable(err)
}

// classifyPgError wraps a pgx error as a dbpostgres.DatabaseError carrying
// its SQLSTATE code, when pgx surfaced one, so sqlstateErrorChecker can
// classify it. Errors pgx didn't tag with a code (context cancellation,
// pool exhaustion) pass through unchanged.
func classifyPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return dbpostgres.NewDatabaseError(pgErr.Code, pgErr.Message).WithOperation(op)
	}
	return err
}

// Config mirrors the shape of the teacher's PostgresConfig.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxConns int32
	MinConns int32

	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	// Schema is prefixed onto wbrb_kv / wbrb_kv_audit; empty means "public".
	Schema string
}

// DefaultConfig mirrors the teacher's DefaultConfig defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "wbrbcache",
		User:            "wbrbcache",
		SSLMode:         "disable",
		MaxConns:        20,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  30 * time.Second,
	}
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (c Config) tableKV() string {
	if c.Schema == "" {
		return "wbrb_kv"
	}
	return c.Schema + ".wbrb_kv"
}

func (c Config) tableAudit() string {
	if c.Schema == "" {
		return "wbrb_kv_audit"
	}
	return c.Schema + ".wbrb_kv_audit"
}

// Backend is a wbrbcache.Storage[string, S] backed by PostgreSQL, storing S
// as JSONB.
type Backend[S any] struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *slog.Logger

	// retryPolicy absorbs transient connection-level failures (a pool
	// member reset mid-transaction, a dropped connection) that are
	// unrelated to the WBRB engine's own write-retry accounting.
	retryPolicy *resilience.RetryPolicy
}

// New connects to PostgreSQL (applying the teacher's pool-sizing knobs) and
// returns a ready Backend. Callers are expected to have already run the
// wbrb_kv / wbrb_kv_audit migrations (see internal/infrastructure/migrations).
func New[S any](ctx context.Context, cfg Config, logger *slog.Logger) (*Backend[S], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConns <= 0 {
		return nil, errors.New("postgres: MaxConns must be > 0")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	retryPolicy := resilience.DefaultRetryPolicy()
	retryPolicy.MaxRetries = 2
	retryPolicy.OperationName = "postgres_storage_write"
	retryPolicy.Logger = logger
	retryPolicy.ErrorChecker = sqlstateErrorChecker{fallback: &resilience.DefaultErrorChecker{}}

	logger.Info("connected to postgres storage backend", "host", cfg.Host, "database", cfg.Database)
	return &Backend[S]{pool: pool, cfg: cfg, logger: logger, retryPolicy: retryPolicy}, nil
}

// Read implements wbrbcache.Storage.
func (b *Backend[S]) Read(ctx context.Context, key string) (S, error) {
	var zero S
	var raw []byte

	sql := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, b.cfg.tableKV())
	err := b.pool.QueryRow(ctx, sql, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, wbrbcache.ErrCacheElementFailedLoading
		}
		b.logger.Error("postgres read failed", "key", key, "error", err)
		return zero, fmt.Errorf("postgres: read %q: %w", key, err)
	}

	var v S
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("postgres: unmarshal %q: %w", key, err)
	}
	return v, nil
}

// Write implements wbrbcache.Storage. It upserts wbrb_kv and appends one
// wbrb_kv_audit row per call, inside a single transaction. The transaction
// attempt is retried under retryPolicy, since a dropped pool connection
// mid-transaction rolls back cleanly and is safe to redo.
func (b *Backend[S]) Write(ctx context.Context, key string, value S) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: marshal %q: %w", key, err)
	}

	return resilience.WithRetry(ctx, b.retryPolicy, func() error {
		tx, err := b.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("postgres: begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		upsertSQL := fmt.Sprintf(`
			INSERT INTO %s (key, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			b.cfg.tableKV())
		if _, err := tx.Exec(ctx, upsertSQL, key, data); err != nil {
			werr := classifyPgError("upsert wbrb_kv", err)
			b.logger.Error("postgres write failed", "key", key, "error", werr)
			return fmt.Errorf("postgres: write %q: %w", key, werr)
		}

		auditSQL := fmt.Sprintf(`INSERT INTO %s (key, value, written_at) VALUES ($1, $2, now())`, b.cfg.tableAudit())
		if _, err := tx.Exec(ctx, auditSQL, key, data); err != nil {
			werr := classifyPgError("insert wbrb_kv_audit", err)
			b.logger.Error("postgres audit insert failed", "key", key, "error", werr)
			return fmt.Errorf("postgres: audit %q: %w", key, werr)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("postgres: commit %q: %w", key, err)
		}
		return nil
	})
}

// Close releases the underlying connection pool.
func (b *Backend[S]) Close() {
	b.pool.Close()
}

// Ping reports whether the PostgreSQL connection is healthy.
func (b *Backend[S]) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}
