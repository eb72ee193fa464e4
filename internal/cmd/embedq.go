package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hivefleet/hfo/internal/embedq"
)

var embedqCmd = &cobra.Command{
	Use:   "embedq",
	Short: "Inspect and drive the embed queue",
}

var (
	claimBatchSize int
	claimWorker    string
	claimStaleMin  int
)

var embedqClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim a batch of pending documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ids, err := embedq.ClaimBatch(db, claimBatchSize, claimWorker, claimStaleMin)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(map[string]interface{}{"claimed": ids})
		}
		fmt.Printf("claimed %d documents\n", len(ids))
		for _, id := range ids {
			fmt.Printf("  %d\n", id)
		}
		return nil
	},
}

var embedqDoneCmd = &cobra.Command{
	Use:   "done <doc-id>...",
	Short: "Mark claimed documents as embedded",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return Usagef("invalid doc id %q", a)
			}
			ids = append(ids, id)
		}
		_, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := embedq.MarkDone(db, ids)
		if err != nil {
			return err
		}
		fmt.Printf("marked %d done\n", n)
		return nil
	},
}

var embedqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth by status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openStoreRO()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := embedq.Stats(db)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(stats)
		}
		for _, status := range []string{embedq.StatusPending, embedq.StatusClaimed, embedq.StatusDone, embedq.StatusFailed} {
			fmt.Printf("%-8s %d\n", status, stats[status])
		}
		return nil
	},
}

func init() {
	embedqClaimCmd.Flags().IntVar(&claimBatchSize, "batch", 10, "batch size")
	embedqClaimCmd.Flags().StringVar(&claimWorker, "worker", "embedding_worker", "worker name")
	embedqClaimCmd.Flags().IntVar(&claimStaleMin, "stale", 30, "reclaim claims older than this many minutes")

	embedqCmd.AddCommand(embedqClaimCmd, embedqDoneCmd, embedqStatsCmd)
	rootCmd.AddCommand(embedqCmd)
}
