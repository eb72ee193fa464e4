package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/audit"
	"github.com/hivefleet/hfo/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read-only store inspections",
}

var (
	coverageHours int
	coverageGrid  bool
)

var auditCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Uptime from stigmergy: minute buckets, grade, dead zones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		w, b := writerFor(rt, db, audit.CoverageSource)
		report, err := audit.RunCoverage(db, w, b, coverageHours, time.Now())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(report)
		}
		fmt.Println(ui.CoverageSummary(report))
		for _, row := range report.Leaderboard {
			fmt.Printf("  %-24s %d min\n", row.Source, row.Minutes)
		}
		if coverageGrid {
			fmt.Print(ui.CoverageGrid(report))
		}
		return nil
	},
}

var foresightHours int

var auditForesightCmd = &cobra.Command{
	Use:   "foresight",
	Short: "Map the stream onto the leverage ladder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		w, b := writerFor(rt, db, audit.ForesightSource)
		report, err := audit.RunForesight(db, w, b, time.Duration(foresightHours)*time.Hour, time.Now())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(report)
		}
		fmt.Printf("%d events  attractor basin %.1f%%  high leverage %.1f%%\n",
			report.Total, report.AttractorBasinPct, report.HighLeveragePct)
		if report.DominantTransition != nil {
			fmt.Printf("dominant transition %d -> %d (weight %d)\n",
				report.DominantTransition.From, report.DominantTransition.To,
				report.DominantTransition.Weight)
		}
		if n := len(report.IdentityViolations); n > 0 {
			fmt.Printf("%d identity violations\n", n)
		}
		return nil
	},
}

func init() {
	auditCoverageCmd.Flags().IntVar(&coverageHours, "hours", 24, "window in hours")
	auditCoverageCmd.Flags().BoolVar(&coverageGrid, "grid", false, "print the per-minute grid")
	auditForesightCmd.Flags().IntVar(&foresightHours, "hours", 24, "window in hours")

	auditCmd.AddCommand(auditCoverageCmd, auditForesightCmd)
	rootCmd.AddCommand(auditCmd)
}
