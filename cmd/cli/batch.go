package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/medvoyage/content-service/internal/locales"
	"github.com/medvoyage/content-service/internal/queue"
)

var (
	batchLocale      string
	batchCategory    string
	batchPriority    string
	batchRequestedBy string
	batchAutoPublish bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <keyword> [keyword...]",
	Short: "Submit a keyword batch",
	Long: `Submit one content-generation job per keyword, tracked together as a batch.
All members share the same locale, category, and priority.`,
	Example: `  content-service batch "dental implants istanbul" "veneers turkey"
  content-service batch --locale de --priority high "haartransplantation türkei"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

// batchStatusCmd shows the progress of an existing batch
var batchStatusCmd = &cobra.Command{
	Use:     "batch-status <batchId>",
	Short:   "Show batch progress",
	Example: `  content-service batch-status bat_06SBgq7Kt3NxR2mYpLcAwZeD`,
	Args:    cobra.ExactArgs(1),
	RunE:    runBatchStatus,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(batchStatusCmd)

	batchCmd.Flags().StringVar(&batchLocale, "locale", locales.Default, "Target locale for all members")
	batchCmd.Flags().StringVar(&batchCategory, "category", "", "Category id attached to each article")
	batchCmd.Flags().StringVar(&batchPriority, "priority", string(queue.PriorityNormal), "Priority: high, normal, or low")
	batchCmd.Flags().StringVar(&batchRequestedBy, "requested-by", "cli", "Requester recorded on the batch")
	batchCmd.Flags().BoolVar(&batchAutoPublish, "auto-publish", false, "Publish generated articles immediately")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	locale, err := locales.Normalize(batchLocale)
	if err != nil {
		return err
	}

	batch, jobs, err := q.EnqueueBatch(ctx, queue.BatchInput{
		Keywords:    args,
		Locale:      locale,
		CategoryID:  batchCategory,
		Priority:    queue.Priority(batchPriority),
		RequestedBy: batchRequestedBy,
		AutoPublish: batchAutoPublish,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created batch %s with %d jobs\n", batch.ID, batch.Total)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tKEYWORD")
	for i, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\n", job.ID, args[i])
	}
	return w.Flush()
}

func runBatchStatus(cmd *cobra.Command, args []string) error {
	progress, err := q.Progress(context.Background(), args[0])
	if err != nil {
		return err
	}

	b := progress.Batch
	fmt.Printf("Batch %s: %s\n", b.ID, b.Status)
	fmt.Printf("  total %d, completed %d, failed %d\n", b.Total, b.Completed, b.Failed)
	if progress.CurrentJobID != "" {
		fmt.Printf("  processing %s (%q)\n", progress.CurrentJobID, progress.CurrentKeyword)
	}
	return nil
}
