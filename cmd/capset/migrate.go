package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capset/internal/store"
)

func newMigrateCmd(s *session) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inspect || dryRun {
				plan, err := store.InspectMigrations(s.cfg.DBPath)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				return writeMigrationPlan(s, plan)
			}

			st, err := store.Open(s.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer st.Close()

			if s.jsonOutput {
				plan, err := st.MigrationPlan()
				if err != nil {
					return err
				}
				return writeJSON(s.out, plan)
			}
			return writePlain(s.out, "Migrations applied successfully.\n")
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func writeMigrationPlan(s *session, plan *store.MigrationStatus) error {
	if s.jsonOutput {
		return writeJSON(s.out, plan)
	}

	_ = writePlain(s.out, "Current version: %d\n", plan.CurrentVersion)
	_ = writePlain(s.out, "Available version: %d\n", plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		return writePlain(s.out, "No pending migrations.\n")
	}
	_ = writePlain(s.out, "Pending migrations: %d\n", len(plan.Pending))
	for _, m := range plan.Pending {
		_ = writePlain(s.out, "  %d: %s\n", m.Version, m.Description)
	}
	return nil
}
