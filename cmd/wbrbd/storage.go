package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/wbrbcache/internal/config"
	dbpostgres "github.com/vitaliisemenov/wbrbcache/internal/database/postgres"
	"github.com/vitaliisemenov/wbrbcache/pkg/metrics"
	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/memory"
	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/postgres"
	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/redisbackend"
	"github.com/vitaliisemenov/wbrbcache/pkg/storagebackend/sqlitebackend"
	"github.com/vitaliisemenov/wbrbcache/pkg/wbrbcache"
)

// backendHandle wraps a constructed storage backend together with whatever
// cleanup it needs on shutdown. Only the memory backend has no closer.
// healthCheck is non-nil only for the postgres backend, which keeps a second,
// connection-pool-level health checker (internal/database/postgres) alongside
// the lean pgxpool-based storage path, purely for /healthz and pool metrics.
type backendHandle struct {
	storage     wbrbcache.Storage[string, string]
	closer      func() error
	healthCheck func(ctx context.Context) error
}

func buildStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backendHandle, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		return &backendHandle{storage: memory.New[string, string]()}, nil

	case config.StorageBackendSQLite:
		b, err := sqlitebackend.New[string](ctx, sqlitebackend.Config{Path: cfg.Storage.SQLitePath}, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite backend: %w", err)
		}
		return &backendHandle{storage: b, closer: b.Close}, nil

	case config.StorageBackendPostgres:
		pgCfg := postgres.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			Database:        cfg.Database.Database,
			User:            cfg.Database.Username,
			Password:        cfg.Database.Password,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        cfg.Database.MaxConnections,
			MinConns:        cfg.Database.MinConnections,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
		}
		if pgCfg.MaxConns == 0 {
			pgCfg.MaxConns = postgres.DefaultConfig().MaxConns
		}
		b, err := postgres.New[string](ctx, pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres backend: %w", err)
		}

		checker, poolCloser := newPostgresHealthPool(ctx, cfg.Database, cfg.Metrics.Namespace, logger)

		return &backendHandle{
			storage: b,
			closer: func() error {
				b.Close()
				if poolCloser != nil {
					poolCloser()
				}
				return nil
			},
			healthCheck: checker,
		}, nil

	case config.StorageBackendRedis:
		rCfg := redisbackend.DefaultConfig()
		rCfg.Addr = cfg.Redis.Addr
		rCfg.Password = cfg.Redis.Password
		rCfg.DB = cfg.Redis.DB
		rCfg.PoolSize = cfg.Redis.PoolSize
		rCfg.MinIdleConns = cfg.Redis.MinIdleConns
		rCfg.DialTimeout = cfg.Redis.DialTimeout
		rCfg.ReadTimeout = cfg.Redis.ReadTimeout
		rCfg.WriteTimeout = cfg.Redis.WriteTimeout
		rCfg.MaxRetries = cfg.Redis.MaxRetries
		rCfg.MinRetryBackoff = cfg.Redis.MinRetryBackoff
		rCfg.MaxRetryBackoff = cfg.Redis.MaxRetryBackoff

		b, err := redisbackend.New[string](ctx, rCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("redis backend: %w", err)
		}
		return &backendHandle{storage: b, closer: b.Close}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newPostgresHealthPool connects a second, independent pgxpool purely for
// connection-pool observability: a circuit-breaker-wrapped health checker for
// /healthz and a PrometheusExporter feeding pkg/metrics' DB gauges. The
// storage path itself (pkg/storagebackend/postgres) holds its own pgxpool and
// never touches this one, so a failure constructing it is logged and
// tolerated rather than treated as fatal. metricsNamespace is threaded
// through from cfg.Metrics.Namespace rather than using metrics.DefaultRegistry(),
// whose namespace is pinned to "wbrbd" on first use regardless of config.
func newPostgresHealthPool(ctx context.Context, dbCfg config.DatabaseConfig, metricsNamespace string, logger *slog.Logger) (func(ctx context.Context) error, func()) {
	poolCfg := &dbpostgres.PostgresConfig{
		Host:            dbCfg.Host,
		Port:            dbCfg.Port,
		Database:        dbCfg.Database,
		User:            dbCfg.Username,
		Password:        dbCfg.Password,
		SSLMode:         dbCfg.SSLMode,
		MaxConns:        dbCfg.MaxConnections,
		MinConns:        dbCfg.MinConnections,
		MaxConnLifetime: dbCfg.MaxConnLifetime,
		MaxConnIdleTime: dbCfg.MaxConnIdleTime,
		ConnectTimeout:  dbCfg.ConnectTimeout,
	}
	if poolCfg.MaxConns == 0 {
		poolCfg.MaxConns = dbpostgres.DefaultConfig().MaxConns
	}

	pool := dbpostgres.NewPostgresPool(poolCfg, logger)
	if err := pool.Connect(ctx); err != nil {
		logger.Warn("postgres health pool unavailable, /healthz will skip the pool-level check", "error", err)
		return nil, nil
	}

	checker := dbpostgres.NewCircuitBreakerHealthChecker(dbpostgres.NewHealthChecker(pool), 3, 30*time.Second)

	exporter := dbpostgres.NewPrometheusExporter(pool, metrics.NewMetricsRegistry(metricsNamespace).Infra().DB)
	exporter.Start(ctx, 10*time.Second)

	return checker.CheckHealth, func() {
		exporter.Stop()
		_ = pool.Close()
	}
}
