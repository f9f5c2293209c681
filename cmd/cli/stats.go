package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/medvoyage/content-service/internal/queue"
)

var (
	statsDays     int
	statsFailures int
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depths, daily counters, and recent failures",
	Example: `  content-service stats
  content-service stats --days 14 --failures 10`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Trailing days of counters to show")
	statsCmd.Flags().IntVar(&statsFailures, "failures", 5, "Recent dead-letter entries to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	depths, err := q.QueueDepths(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Queue depths:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tPENDING\tDELAYED")
	for _, t := range queue.AllTypes {
		fmt.Fprintf(w, "%s\t%d\t%d\n", t, depths.Pending[t], depths.Delayed[t])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("processing: %d, dead: %d\n\n", depths.Processing, depths.Dead)

	days, err := q.StatsRange(ctx, statsDays)
	if err != nil {
		return err
	}
	fmt.Printf("Last %d days:\n", statsDays)
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tENQUEUED\tCOMPLETED\tRETRIED\tDEAD")
	for _, day := range days {
		var enq, comp, retr, dead int64
		for _, t := range queue.AllTypes {
			enq += day.Counters[string(t)+":"+string(queue.EventEnqueued)]
			comp += day.Counters[string(t)+":"+string(queue.EventCompleted)]
			retr += day.Counters[string(t)+":"+string(queue.EventRetried)]
			dead += day.Counters[string(t)+":"+string(queue.EventDead)]
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", day.Day, enq, comp, retr, dead)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if statsFailures > 0 {
		failures, err := q.RecentFailures(ctx, int64(statsFailures))
		if err != nil {
			return err
		}
		if len(failures) > 0 {
			fmt.Println("\nRecent failures:")
			for _, f := range failures {
				fmt.Printf("  %s  %s  %s\n",
					time.UnixMilli(f.FailedAt).Format(time.RFC3339), f.JobID, f.Error)
			}
		}
	}
	return nil
}
