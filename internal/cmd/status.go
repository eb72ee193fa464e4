package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/audit"
	"github.com/hivefleet/hfo/internal/embedq"
	"github.com/hivefleet/hfo/internal/fleet"
	"github.com/hivefleet/hfo/internal/stigmergy"
	"github.com/hivefleet/hfo/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "One-screen fleet overview",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStoreRO()
		if err != nil {
			return err
		}
		defer db.Close()

		now := time.Now()
		maxID, err := stigmergy.MaxEventID(db)
		if err != nil {
			return err
		}
		lastHour, err := stigmergy.CountSince(db, now.Add(-time.Hour), "")
		if err != nil {
			return err
		}
		depth, err := embedq.Depth(db)
		if err != nil {
			return err
		}
		events, err := stigmergy.EventsSince(db, now.Add(-time.Hour), "")
		if err != nil {
			return err
		}
		coverage := audit.ComputeCoverage(events, 1, now)

		st := fleet.LoadState(rt.Root)
		type daemonLine struct {
			Name     string `json:"name"`
			Port     string `json:"port"`
			PID      int    `json:"pid"`
			PIDAlive bool   `json:"pid_alive"`
			Events   int    `json:"events_10m"`
		}
		var daemons []daemonLine
		since := now.Add(-10 * time.Minute)
		for _, spec := range fleet.Default {
			d := st.Daemons[spec.Name]
			n, err := stigmergy.CountSince(db, since, spec.Name)
			if err != nil {
				return err
			}
			daemons = append(daemons, daemonLine{
				Name:     spec.Name,
				Port:     spec.Port,
				PID:      d.PID,
				PIDAlive: fleet.PIDAlive(d.PID),
				Events:   n,
			})
		}

		if jsonOut {
			return printJSON(map[string]interface{}{
				"root":          rt.Root,
				"generation":    rt.Generation,
				"store":         rt.DBPath,
				"max_event_id":  maxID,
				"events_1h":     lastHour,
				"uptime_pct_1h": coverage.UptimePct,
				"uptime_grade":  coverage.Grade,
				"queue_depth":   depth,
				"daemons":       daemons,
			})
		}

		fmt.Println(ui.Header(fmt.Sprintf("hfo %s @ %s", rt.Generation, rt.Root)))
		fmt.Printf("events: %d total, %d in the last hour  uptime %s (%.1f%%)\n",
			maxID, lastHour, ui.Grade(coverage.Grade), coverage.UptimePct)
		fmt.Printf("embed queue: %d pending\n", depth)
		fmt.Println(ui.Header("fleet"))
		for _, d := range daemons {
			alive := "dead"
			if d.PIDAlive || d.Events > 0 {
				alive = "alive"
			}
			fmt.Printf("  %-14s %-3s %-6s pid=%-8d events(10m)=%d\n",
				d.Name, d.Port, alive, d.PID, d.Events)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
