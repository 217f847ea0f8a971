package main

import (
	"fmt"

	"github.com/DukeRupert/mailprobe/internal"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply every pending migration embedded in the binary.

The server also migrates on startup; use this to prepare a database
before the first deploy or to check the schema version.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := internal.RunMigrations(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		version, err := internal.MigrationVersion(db)
		if err != nil {
			return err
		}

		logger.Info("Migrations applied")
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		version, err := internal.MigrationVersion(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", version)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
}
