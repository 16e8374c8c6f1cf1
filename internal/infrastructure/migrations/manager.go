// Package migrations wraps pressly/goose/v3 for applying the wbrb_kv and
// wbrb_kv_audit schema migrations, grounded on the teacher's
// MigrationManager shape but trimmed to the operations cmd/migrate actually
// exercises (no file-generation, validation, or backup subsystem: with two
// hand-written migration files this cache has no use for a migration
// scaffolding tool).
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

// MigrationConfig configures the migration runner's database connection and
// the directory holding the wbrb_kv / wbrb_kv_audit .sql files.
type MigrationConfig struct {
	Driver  string `env:"MIGRATION_DRIVER" default:"postgres"`
	DSN     string `env:"MIGRATION_DSN" default:""`
	Dialect string `env:"MIGRATION_DIALECT" default:"postgres"`

	Dir   string `env:"MIGRATION_DIR" default:"migrations"`
	Table string `env:"MIGRATION_TABLE" default:"goose_db_version"`

	Timeout time.Duration `env:"MIGRATION_TIMEOUT" default:"5m"`

	// Logger (not set from env).
	Logger *slog.Logger
}

// MigrationManager drives goose against the configured database, scoped to
// the wbrb_kv schema's migration directory.
type MigrationManager struct {
	config *MigrationConfig
	db     *sql.DB
	logger *slog.Logger
}

// NewMigrationManager opens the database connection goose will run against.
func NewMigrationManager(config *MigrationConfig) (*MigrationManager, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	return &MigrationManager{config: config, db: db, logger: logger}, nil
}

// Connect verifies the database connection is reachable.
func (mm *MigrationManager) Connect(ctx context.Context) error {
	if err := mm.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	mm.logger.Info("connected to database for migrations", "driver", mm.config.Driver, "dialect", mm.config.Dialect)
	return nil
}

// Disconnect closes the database connection.
func (mm *MigrationManager) Disconnect(ctx context.Context) error {
	if mm.db == nil {
		return nil
	}
	if err := mm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	mm.logger.Info("disconnected from database")
	return nil
}

func (mm *MigrationManager) setDialect() error {
	if err := goose.SetDialect(mm.config.Dialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Up applies every migration in MigrationConfig.Dir that hasn't run yet —
// creating wbrb_kv and wbrb_kv_audit on a fresh database.
func (mm *MigrationManager) Up(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	start := time.Now()
	if err := goose.Up(mm.db, mm.config.Dir); err != nil {
		mm.logger.Error("migration up failed", "error", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	mm.logger.Info("migrations applied", "duration", time.Since(start))
	return nil
}

// UpTo applies migrations up to and including version.
func (mm *MigrationManager) UpTo(ctx context.Context, version int64) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.UpTo(mm.db, mm.config.Dir, version); err != nil {
		return fmt.Errorf("failed to apply migrations up to version %d: %w", version, err)
	}
	return nil
}

// Down rolls back the single most recent migration.
func (mm *MigrationManager) Down(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.Down(mm.db, mm.config.Dir); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// DownTo rolls back migrations down to (not including) version.
func (mm *MigrationManager) DownTo(ctx context.Context, version int64) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.DownTo(mm.db, mm.config.Dir, version); err != nil {
		return fmt.Errorf("failed to rollback migrations to version %d: %w", version, err)
	}
	return nil
}

// Version returns the schema's current migration version.
func (mm *MigrationManager) Version(ctx context.Context) (int64, error) {
	if err := mm.setDialect(); err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersion(mm.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, nil
}

// Status prints the applied/pending state of every migration to stdout via
// goose's own reporter.
func (mm *MigrationManager) Status(ctx context.Context) error {
	if err := mm.setDialect(); err != nil {
		return err
	}
	if err := goose.Status(mm.db, mm.config.Dir); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	return nil
}
