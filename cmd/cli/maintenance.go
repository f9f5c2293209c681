package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/medvoyage/content-service/internal/queue"
)

// reclaimCmd represents the reclaim command
var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Recover processing jobs whose deadline passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := q.ReclaimStale(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Reclaimed %d stale jobs\n", n)
		return nil
	},
}

// purgeCmd represents the purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove terminal jobs past their retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := q.Purge(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d completed and %d dead jobs\n", res.Completed, res.Dead)
		return nil
	},
}

// promoteCmd represents the promote command
var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Move due delayed jobs into the pending queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		total := 0
		for _, t := range queue.AllTypes {
			n, err := q.PromoteDue(context.Background(), t)
			if err != nil {
				return err
			}
			total += n
		}
		fmt.Printf("Promoted %d jobs\n", total)
		return nil
	},
}

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:     "replay <jobId>",
	Short:   "Requeue a dead-lettered job with a fresh attempt budget",
	Example: `  content-service replay job_06SBgq7Kt3NxR2mYpLcAwZeD`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := q.Replay(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Replayed %s (%s, priority %s)\n", job.ID, job.Type, job.Priority)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reclaimCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(replayCmd)
}
