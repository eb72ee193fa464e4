package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/watchdog"
)

var watchdogDryRun bool

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Check the fleet and restart dead daemons",
	Long: `Sweeps the declared fleet once. A daemon counts as alive when its
recorded PID is running or it wrote an event in the last ten minutes.
Dead daemons are respawned detached, subject to restart backoff and
crash-loop hold-down. --dry-run reports without restarting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		logger := log.New(os.Stderr, "", log.LstdFlags)
		w, b := writerFor(rt, db, watchdog.Source)
		wd := watchdog.New(db, rt, w, b, logger)
		result, err := wd.Check(watchdogDryRun)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(result)
		}
		fmt.Printf("checked %d  alive %d  restarted %d  held %d\n",
			result.Checked, result.Alive, result.Restarted, result.Held)
		for _, d := range result.Daemons {
			detail := ""
			if d.Detail != "" {
				detail = "  " + d.Detail
			}
			fmt.Printf("  %-14s %-3s %-10s pid=%d%s\n", d.Name, d.Port, d.Status, d.PID, detail)
		}
		return nil
	},
}

func init() {
	watchdogCmd.Flags().BoolVar(&watchdogDryRun, "dry-run", false, "report without restarting")
	rootCmd.AddCommand(watchdogCmd)
}
