package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/scheduler"
)

var schedulerOnce bool

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the fleet tick loop",
	Long: `Starts the single-workspace scheduler: heartbeats every minute,
embed sweeps every five, audits hourly, watchdog four times a day.
Holds a workspace lock so only one scheduler runs at a time. SIGINT or
SIGTERM stops the loop within a second.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		logger, logFile, err := scheduler.OpenLog(rt.Root)
		if err != nil {
			return err
		}
		defer logFile.Close()

		w, b := writerFor(rt, db, scheduler.Source)
		s := scheduler.New(db, rt, w, b, logger)
		if schedulerOnce {
			s.Tick(time.Now())
			fmt.Println("single tick complete")
			return nil
		}
		return s.Run()
	},
}

func init() {
	schedulerCmd.Flags().BoolVar(&schedulerOnce, "once", false, "run one tick and exit")
	rootCmd.AddCommand(schedulerCmd)
}
