package migrations

import (
	"fmt"
	"os"
	"time"
)

// LoadConfig loads the migration runner's configuration from the
// environment. cmd/migrate is the only caller.
func LoadConfig() (*MigrationConfig, error) {
	config := &MigrationConfig{
		Driver:  getEnvString("MIGRATION_DRIVER", "postgres"),
		DSN:     getEnvString("MIGRATION_DSN", ""),
		Dir:     getEnvString("MIGRATION_DIR", "migrations"),
		Table:   getEnvString("MIGRATION_TABLE", "goose_db_version"),
		Timeout: getEnvDuration("MIGRATION_TIMEOUT", 5*time.Minute),
	}
	config.Dialect = getEnvString("MIGRATION_DIALECT", config.Driver)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migration configuration: %w", err)
	}
	return config, nil
}

// Validate checks that the configuration is usable.
func (c *MigrationConfig) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("database driver cannot be empty")
	}
	if c.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.Dir == "" {
		return fmt.Errorf("migration directory cannot be empty")
	}
	if c.Table == "" {
		return fmt.Errorf("migration table name cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
