// Command migrate applies or rolls back the wbrb_kv / wbrb_kv_audit schema
// migrations, grounded on the teacher's cobra-based migrate CLI but trimmed
// down to the subcommands migrations.MigrationManager actually exposes.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/wbrbcache/internal/infrastructure/migrations"
)

func main() {
	config, err := migrations.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load migration config: %v\n", err)
		os.Exit(1)
	}

	manager, err := migrations.NewMigrationManager(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migration manager: %v\n", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the wbrb_kv schema migrations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return manager.Connect(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return manager.Disconnect(cmd.Context())
		},
	}

	root.AddCommand(
		upCommand(manager),
		upToCommand(manager),
		downCommand(manager),
		downToCommand(manager),
		statusCommand(manager),
		versionCommand(manager),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func upCommand(manager *migrations.MigrationManager) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return manager.Up(cmd.Context())
		},
	}
}

func upToCommand(manager *migrations.MigrationManager) *cobra.Command {
	return &cobra.Command{
		Use:   "up-to [version]",
		Short: "Apply migrations up to and including version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return manager.UpTo(cmd.Context(), version)
		},
	}
}

func downCommand(manager *migrations.MigrationManager) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return manager.Down(cmd.Context())
		},
	}
}

func downToCommand(manager *migrations.MigrationManager) *cobra.Command {
	return &cobra.Command{
		Use:   "down-to [version]",
		Short: "Roll back migrations down to (not including) version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return manager.DownTo(cmd.Context(), version)
		},
	}
}

func statusCommand(manager *migrations.MigrationManager) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the applied/pending state of every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return manager.Status(cmd.Context())
		},
	}
}

func versionCommand(manager *migrations.MigrationManager) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the schema's current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := manager.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(version)
			return nil
		},
	}
}
