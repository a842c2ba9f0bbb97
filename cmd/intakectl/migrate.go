package main

import (
	"context"
	"fmt"
	"io"

	"resident-intake/internal/store"
	"resident-intake/pkg/utils"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the intake schema to Postgres",
		Long: `Applies the embedded schema: properties, residents, property_fees, tickets,
conversation_sessions, intake_jobs and audit_events.

Safe to run multiple times (idempotent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), db)
		},
	}
}

func runMigrate(ctx context.Context, out io.Writer, db utils.Querier) error {
	if _, err := db.ExecContext(ctx, store.Schema); err != nil {
		return fmt.Errorf("migrate: apply schema: %w", err)
	}
	fmt.Fprintln(out, "Schema applied")
	return nil
}
