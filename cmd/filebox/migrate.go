package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filebox/internal/config"
	"filebox/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			if inspect || dryRun {
				plan, err := migrationPlan(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				if *jsonOutput {
					return writeJSON(plan)
				}
				return writeMigrationPlan(plan)
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := st.Close(); err != nil {
				return err
			}

			if *jsonOutput {
				plan, err := migrationPlan(cfg.DBPath)
				if err != nil {
					return err
				}
				return writeJSON(plan)
			}
			return writePlain("Migrations applied successfully.\n")
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func migrationPlan(path string) (*store.MigrationStatus, error) {
	db, err := store.OpenRaw(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.MigrationPlan(db)
}

func writeMigrationPlan(plan *store.MigrationStatus) error {
	if err := writePlain("Current version: %d\nAvailable version: %d\n", plan.CurrentVersion, plan.AvailableVersion); err != nil {
		return err
	}
	if len(plan.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	if err := writePlain("Pending migrations: %d\n", len(plan.Pending)); err != nil {
		return err
	}
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
