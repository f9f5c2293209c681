package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/medvoyage/content-service/internal/queue"
)

var (
	enqueueType     string
	enqueuePayload  string
	enqueuePriority string
	enqueueDelay    time.Duration
	enqueueAttempts int
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit a single generation job",
	Long: `Submit one job to the generation queue. The payload is raw JSON and must
match the job type: content_generation, image_generation, translation, or
seo_optimization.`,
	Example: `  content-service enqueue --type content_generation --payload '{"keyword":"dental implants istanbul","locale":"en"}'
  content-service enqueue --type translation --payload '{"article_id":"art_x","source_locale":"en","target_locale":"de"}' --priority high
  content-service enqueue --type content_generation --payload '{"keyword":"veneers","locale":"en"}' --delay 2h`,
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueueType, "type", string(queue.TypeContent), "Job type")
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "", "Job payload as raw JSON (required)")
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", string(queue.PriorityNormal), "Priority: high, normal, or low")
	enqueueCmd.Flags().DurationVar(&enqueueDelay, "delay", 0, "Defer execution by this duration")
	enqueueCmd.Flags().IntVar(&enqueueAttempts, "max-attempts", 0, "Override the retry budget")
	enqueueCmd.MarkFlagRequired("payload")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	in := queue.EnqueueInput{
		Type:        queue.JobType(enqueueType),
		Payload:     json.RawMessage(enqueuePayload),
		Priority:    queue.Priority(enqueuePriority),
		MaxAttempts: enqueueAttempts,
	}
	if enqueueDelay > 0 {
		in.ScheduledAt = time.Now().Add(enqueueDelay)
	}

	job, err := q.Enqueue(ctx, in)
	if err != nil {
		return err
	}

	fmt.Printf("Enqueued %s (%s, priority %s)\n", job.ID, job.Type, job.Priority)
	if job.ScheduledAt > 0 {
		fmt.Printf("Scheduled for %s\n", time.UnixMilli(job.ScheduledAt).Format(time.RFC3339))
	}
	return nil
}
