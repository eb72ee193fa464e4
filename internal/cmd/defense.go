package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/defense"
	"github.com/hivefleet/hfo/internal/ui"
)

var defenseCmd = &cobra.Command{
	Use:   "defense",
	Short: "Run the anomaly supervisor over new events",
	Long: `Reads everything past the persisted watermark, scores the seven
anomaly classes (D1..D7), and emits a summary event plus one event per
WARN or CRITICAL anomaly. Never restarts anything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		w, b := writerFor(rt, db, defense.Source)
		s := defense.New(db, rt, w, b)
		report, err := s.Run()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(report)
		}
		fmt.Printf("defense score %d  grade %s  trend %s  (%d events scanned)\n",
			report.Score, ui.Grade(report.Grade), report.Trend, report.Scanned)
		for _, a := range report.Anomalies {
			if a.Severity == defense.SevInfo {
				continue
			}
			fmt.Printf("  %s %-8s -%d  %s\n", a.Code, a.Severity, a.Deduction, a.Detail)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(defenseCmd)
}
