package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/route"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect and set compute routes",
}

var routeGetCmd = &cobra.Command{
	Use:   "get <port> <daemon> [task]",
	Short: "Resolve the route for a (port, daemon, task)",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStoreRO()
		if err != nil {
			return err
		}
		defer db.Close()

		task := ""
		if len(args) == 3 {
			task = args[2]
		}
		r, err := route.Get(db, args[0], args[1], task)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(r)
		}
		fmt.Printf("%s/%s/%s -> %s (%s)\n", r.Port, r.Daemon, r.Task, r.ModelID, r.Provider)
		return nil
	},
}

var (
	routeProvider string
	routePriority int
	routeReason   string
)

var routeSetCmd = &cobra.Command{
	Use:   "set <port> <daemon> <task> <model>",
	Short: "Upsert a compute route",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		r := route.Route{
			Port:      args[0],
			Daemon:    args[1],
			Task:      args[2],
			ModelID:   args[3],
			Provider:  routeProvider,
			Priority:  routePriority,
			UpdatedBy: "operator",
			Reason:    routeReason,
		}
		if err := route.Set(db, r); err != nil {
			return err
		}
		if jsonOut {
			return printJSON(r)
		}
		fmt.Printf("route set: %s/%s/%s -> %s\n", r.Port, r.Daemon, r.Task, r.ModelID)
		return nil
	},
}

var routeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all compute routes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStoreRO()
		if err != nil {
			return err
		}
		defer db.Close()

		routes, err := route.List(db)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(routes)
		}
		for _, r := range routes {
			fmt.Printf("%-3s %-14s %-12s %-20s %s\n", r.Port, r.Daemon, r.Task, r.ModelID, r.Provider)
		}
		return nil
	},
}

func init() {
	routeSetCmd.Flags().StringVar(&routeProvider, "provider", "ollama", "model provider")
	routeSetCmd.Flags().IntVar(&routePriority, "priority", 0, "route priority")
	routeSetCmd.Flags().StringVar(&routeReason, "reason", "", "reason for the change")

	routeCmd.AddCommand(routeGetCmd, routeSetCmd, routeListCmd)
	rootCmd.AddCommand(routeCmd)
}
