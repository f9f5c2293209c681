package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/medvoyage/content-service/internal/database"
	"github.com/medvoyage/content-service/internal/generator"
	"github.com/medvoyage/content-service/internal/queue"
	"github.com/medvoyage/content-service/internal/worker"
)

var (
	workMaxJobs     int
	workDrain       bool
	workTypes       []string
	workID          string
	workSkipPersist bool
)

// workCmd represents the work command
var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run a generation worker in the foreground",
	Long: `Pull jobs off the queue and run them against the configured generator.
By default the worker runs until interrupted; --max-jobs bounds it and --drain
exits once the watched queues are empty.`,
	Example: `  content-service work
  content-service work --max-jobs 10
  content-service work --drain --types content_generation,translation`,
	RunE: runWork,
}

func init() {
	rootCmd.AddCommand(workCmd)

	workCmd.Flags().IntVar(&workMaxJobs, "max-jobs", 0, "Stop after this many jobs (0 = unbounded)")
	workCmd.Flags().BoolVar(&workDrain, "drain", false, "Exit when the watched queues are empty")
	workCmd.Flags().StringSliceVar(&workTypes, "types", nil, "Job types to watch (default all)")
	workCmd.Flags().StringVar(&workID, "worker-id", "cli-worker", "Worker id used in logs")
	workCmd.Flags().BoolVar(&workSkipPersist, "no-persist", false, "Skip the content database, keep results on job records")
}

func runWork(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var types []queue.JobType
	for _, t := range workTypes {
		jt := queue.JobType(t)
		if !jt.Valid() {
			return fmt.Errorf("unknown job type %q", t)
		}
		types = append(types, jt)
	}

	var store worker.ContentStore
	if !workSkipPersist && cfg.Database.URL != "" {
		if err := database.Connect(
			ctx,
			cfg.Database.URL,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			cfg.Database.MaxConnLifetime,
			cfg.Database.MaxConnIdleTime,
		); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		store = database.NewContentStore(database.Pool())
		logger.Info().Msg("Database connected")
	} else {
		logger.Warn().Msg("Running without content database, results stay on job records")
	}

	gen := generator.NewClient(generator.ClientConfig{
		BaseURL:           cfg.Generator.BaseURL,
		APIKey:            cfg.Generator.APIKey,
		Timeout:           cfg.Generator.Timeout,
		RequestsPerSecond: cfg.Generator.RequestsPerSecond,
		Burst:             cfg.Generator.Burst,
	}, logger)

	w := worker.New(q, gen, store, worker.Config{
		WorkerID:      workID,
		Types:         types,
		MaxJobs:       workMaxJobs,
		StopOnEmpty:   workDrain,
		PollInterval:  cfg.Worker.PollInterval,
		InterJobDelay: cfg.Worker.InterJobDelay,
	}, logger)

	w.SetHooks(worker.Hooks{
		JobCompleted: func(j *queue.Job) {
			fmt.Printf("completed %s (%s)\n", j.ID, j.Type)
		},
		JobFailed: func(j *queue.Job, reason string) {
			fmt.Printf("failed %s (%s): %s\n", j.ID, j.Type, reason)
		},
	})

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
