package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version, including
the seeded category taxonomy and global rules.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath, err := databasePath()
			if err != nil {
				return err
			}
			slog.Info("Running database migrations", "database", dbPath)

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			slog.Info("Database migrations completed successfully")
			return nil
		},
	}
}
