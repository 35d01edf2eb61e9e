package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-discovery/internal/database"
	"github.com/JakeFAU/creator-discovery/internal/logging"
)

var errNoDSN = errors.New("db.dsn is required for migrations")

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the embedded schema migrations.",
	}
	cmd.AddCommand(newMigrateUpCmd(), newMigrateDownCmd(), newMigrateVersionCmd())
	return cmd
}

func migrateDeps(cmd *cobra.Command) (string, *zap.Logger, error) {
	cfg, err := configFrom(cmd.Context())
	if err != nil {
		return "", nil, err
	}
	if cfg.DB.DSN == "" {
		return "", nil, errNoDSN
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Service:     cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return "", nil, fmt.Errorf("logger init failed: %w", err)
	}
	return cfg.DB.DSN, logger, nil
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, logger, err := migrateDeps(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return database.Up(dsn, logger)
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (one step by default).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be > 0")
			}
			dsn, logger, err := migrateDeps(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return database.Down(dsn, steps, logger)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, _, err := migrateDeps(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := database.Version(dsn)
			if err != nil {
				return err
			}
			cmd.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
}
