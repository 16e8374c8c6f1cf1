// Package redisbackend adapts github.com/redis/go-redis/v9 into a
// wbrbcache.Storage[string, S] implementation, JSON-encoding S as a single
// string value per key.
package redisbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/wbrbcache/internal/core/resilience"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

// Config mirrors the teacher's CacheConfig, trimmed to what a Storage
// backend needs (no circuit breaker / metrics toggles — those live in the
// ambient metrics layer, not the storage contract).
type Config struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration

	// KeyPrefix namespaces every key this backend touches, so a shared Redis
	// instance can host more than one cache's KV space.
	KeyPrefix string
}

// DefaultConfig returns conservative defaults matching the teacher's.
func DefaultConfig() Config {
	return Config{
		Addr:            "localhost:6379",
		DB:              0,
		PoolSize:        10,
		MinIdleConns:    1,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		KeyPrefix:       "wbrb:",
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("redisbackend: Addr must not be empty")
	}
	if c.PoolSize <= 0 {
		return errors.New("redisbackend: PoolSize must be > 0")
	}
	if c.DialTimeout <= 0 {
		return errors.New("redisbackend: DialTimeout must be > 0")
	}
	return nil
}

// Backend is a wbrbcache.Storage[string, S] backed by a Redis string value
// per key, JSON-encoded.
type Backend[S any] struct {
	client      *redis.Client
	cfg         Config
	logger      *slog.Logger
	retryPolicy *resilience.RetryPolicy
}

// New dials Redis (ping-testing the connection, like the teacher's
// NewRedisCache) and returns a ready Backend.
func New[S any](ctx context.Context, cfg Config, logger *slog.Logger) (*Backend[S], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err, "addr", cfg.Addr)
		return nil, fmt.Errorf("redisbackend: connect: %w", err)
	}

	logger.Info("connected to redis storage backend", "addr", cfg.Addr, "db", cfg.DB)

	retryPolicy := resilience.DefaultRetryPolicy()
	retryPolicy.MaxRetries = 2
	retryPolicy.OperationName = "redis_storage_write"
	retryPolicy.Logger = logger
	retryPolicy.ErrorChecker = &resilience.DefaultErrorChecker{}

	return &Backend[S]{client: client, cfg: cfg, logger: logger, retryPolicy: retryPolicy}, nil
}

func (b *Backend[S]) key(k string) string {
	return b.cfg.KeyPrefix + k
}

// Read implements wbrbcache.Storage.
func (b *Backend[S]) Read(ctx context.Context, key string) (S, error) {
	var zero S
	raw, err := b.client.Get(ctx, b.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, wbrbcache.ErrCacheElementFailedLoading
		}
		b.logger.Error("redis read failed", "key", key, "error", err)
		return zero, fmt.Errorf("redisbackend: read %q: %w", key, err)
	}

	var v S
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		b.logger.Error("redis value unmarshal failed", "key", key, "error", err)
		return zero, fmt.Errorf("redisbackend: unmarshal %q: %w", key, err)
	}
	return v, nil
}

// Write implements wbrbcache.Storage. Transient connection drops are
// absorbed by retryPolicy before surfacing to the engine's own write-retry
// accounting.
func (b *Backend[S]) Write(ctx context.Context, key string, value S) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisbackend: marshal %q: %w", key, err)
	}
	return resilience.WithRetry(ctx, b.retryPolicy, func() error {
		if err := b.client.Set(ctx, b.key(key), data, 0).Err(); err != nil {
			b.logger.Error("redis write failed", "key", key, "error", err)
			return fmt.Errorf("redisbackend: write %q: %w", key, err)
		}
		return nil
	})
}

// Close releases the underlying connection pool.
func (b *Backend[S]) Close() error {
	return b.client.Close()
}

// Ping reports whether the Redis connection is healthy.
func (b *Backend[S]) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
