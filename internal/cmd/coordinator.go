package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/coordinator"
	"github.com/hivefleet/hfo/internal/ui"
)

var coordinatorCmd = &cobra.Command{
	Use:     "coordinator",
	Aliases: []string{"coord"},
	Short:   "Swarm coordinator: pheromone, audits, recommendations",
}

var coordCycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one coordination cycle and emit recommendations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		w, b := writerFor(rt, db, coordinator.SourceTag)
		c := coordinator.New(db, w, b)
		report, err := c.RunCycle()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(report)
		}
		fmt.Printf("signal grade %s  (%d signal / %d legacy / %d blind of %d)\n",
			ui.Grade(report.Audit.Grade), report.Audit.Signal, report.Audit.Legacy,
			report.Audit.Blind, report.Audit.Total)
		fmt.Printf("pheromone entries %d  ports covered %d  quality diversity %.2f\n",
			report.EntryCount, report.PortsCovered, report.QualityDiversity)
		for _, port := range sortedPorts(report.Recommendations) {
			rec := report.Recommendations[port]
			mark := " "
			if rec.Exploration {
				mark = "*"
			}
			fmt.Printf("  %s %s -> %-20s %-8s %.3f  %s\n",
				mark, port, rec.Model, rec.Tier, rec.Strength, rec.Reason)
		}
		return nil
	},
}

var coordRecommendCmd = &cobra.Command{
	Use:   "recommend <port>",
	Short: "Show the latest recommendation for a port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStoreRO()
		if err != nil {
			return err
		}
		defer db.Close()

		rec, err := coordinator.ReadLatestRecommendation(db, rt.Generation, args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no recommendation for %s yet; run 'hfo coordinator cycle'", args[0])
		}
		if jsonOut {
			return printJSON(rec)
		}
		fmt.Printf("%s -> %s (%s)  strength %.3f  %s\n",
			rec.Port, rec.Model, rec.Tier, rec.Strength, rec.Reason)
		return nil
	},
}

var coordIntentCmd = &cobra.Command{
	Use:   "intent <text>...",
	Short: "Route free text to a port by keyword",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := coordinator.RouteIntent(strings.Join(args, " "))
		if jsonOut {
			return printJSON(r)
		}
		fmt.Printf("%s  confidence %.2f\n", r.PrimaryPort, r.Confidence)
		for _, alt := range r.Alternatives {
			fmt.Printf("  alt %s (%.0f)\n", alt.Port, alt.Score)
		}
		return nil
	},
}

func sortedPorts(m map[string]coordinator.Recommendation) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func init() {
	coordinatorCmd.AddCommand(coordCycleCmd, coordRecommendCmd, coordIntentCmd)
	rootCmd.AddCommand(coordinatorCmd)
}
