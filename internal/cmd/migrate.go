package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the SSOT store schema",
	Long: `Applies the full schema to the blessed store: tables, indices,
the FTS mirror, the embed-queue triggers, and the signal-metadata gate
trigger for the current generation. Safe to re-run; every statement is
idempotent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime()
		if err != nil {
			return err
		}
		db, err := store.Migrate(rt.DBPath, rt.Generation)
		if err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
		defer db.Close()

		if jsonOut {
			return printJSON(map[string]string{
				"store":      rt.DBPath,
				"generation": rt.Generation,
				"status":     "migrated",
			})
		}
		fmt.Printf("migrated %s (generation %s)\n", rt.DBPath, rt.Generation)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
