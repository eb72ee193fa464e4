package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/sigil"
	"github.com/hivefleet/hfo/internal/stigmergy"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Write and inspect stigmergy events",
}

var (
	eventPort     string
	eventModel    string
	eventDaemon   string
	eventProvider string
	eventSubject  string
	eventData     string
)

var eventWriteCmd = &cobra.Command{
	Use:   "write <event-type>",
	Short: "Write one canonical event through the gate",
	Long: `Writes one event through the canonical writer. The event type is
prefixed with the current generation unless it already carries a dot
prefix. Port, model, daemon, and provider are required; the gate
rejects the write and records a gate-block without them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		eventType := args[0]
		if !strings.Contains(eventType, ".") {
			eventType = rt.Generation + "." + eventType
		}

		var data map[string]interface{}
		if eventData != "" {
			if err := json.Unmarshal([]byte(eventData), &data); err != nil {
				return Usagef("--data is not valid JSON: %v", err)
			}
		}

		w, b := writerFor(rt, db, eventDaemon)
		sig := b.Build(eventPort, eventModel, eventDaemon, "", eventProvider, sigil.Observations{})
		rowID, err := w.WriteEvent(eventType, eventSubject, "", data, sig)
		if err != nil {
			return err
		}

		if jsonOut {
			return printJSON(map[string]interface{}{"row_id": rowID, "deduplicated": rowID == 0})
		}
		if rowID == 0 {
			fmt.Println("deduplicated (identical event already stored)")
			return nil
		}
		fmt.Printf("event %d written\n", rowID)
		return nil
	},
}

var (
	tailLimit  int
	tailPrefix string
)

var eventTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the newest events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStoreRO()
		if err != nil {
			return err
		}
		defer db.Close()

		events, err := stigmergy.Tail(db, tailPrefix, tailLimit)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(events)
		}
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			fmt.Printf("%6d  %s  %-40s  %s\n", e.ID, e.Timestamp, e.Type, e.Subject)
		}
		return nil
	},
}

func init() {
	eventWriteCmd.Flags().StringVar(&eventPort, "port", "", "logical port (P0..P7)")
	eventWriteCmd.Flags().StringVar(&eventModel, "model", "", "model id")
	eventWriteCmd.Flags().StringVar(&eventDaemon, "daemon", "", "daemon name")
	eventWriteCmd.Flags().StringVar(&eventProvider, "provider", "", "model provider")
	eventWriteCmd.Flags().StringVar(&eventSubject, "subject", "", "routing subject")
	eventWriteCmd.Flags().StringVar(&eventData, "data", "", "payload JSON object")
	_ = eventWriteCmd.MarkFlagRequired("port")
	_ = eventWriteCmd.MarkFlagRequired("model")
	_ = eventWriteCmd.MarkFlagRequired("daemon")
	_ = eventWriteCmd.MarkFlagRequired("provider")

	eventTailCmd.Flags().IntVarP(&tailLimit, "limit", "n", 20, "number of events")
	eventTailCmd.Flags().StringVar(&tailPrefix, "type", "", "event type prefix filter")

	eventCmd.AddCommand(eventWriteCmd, eventTailCmd)
	rootCmd.AddCommand(eventCmd)
}
