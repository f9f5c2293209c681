// Package worker runs the generation loop: it pulls jobs off the queue,
// dispatches them to the external generator, persists the produced content,
// and reports the outcome back to the queue. A worker never decides retry
// policy itself; it only marks success or failure.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medvoyage/content-service/internal/database"
	"github.com/medvoyage/content-service/internal/generator"
	"github.com/medvoyage/content-service/internal/queue"
)

// ContentStore is the persistence surface the worker writes results to.
// *database.ContentStore satisfies it in production.
type ContentStore interface {
	SaveArticle(ctx context.Context, in database.ArticleInput) (string, error)
	SaveTranslation(ctx context.Context, in database.TranslationInput) (string, error)
	SaveImage(ctx context.Context, in database.ImageInput) (string, error)
	UpdateArticleSEO(ctx context.Context, in database.SEOUpdate) error
	UpsertRequest(ctx context.Context, in database.RequestUpsert) error
	MarkRequestCompleted(ctx context.Context, jobID, contentID string) error
	MarkRequestFailed(ctx context.Context, jobID, reason string) error
}

// Hooks are optional per-event callbacks. Nil fields are skipped.
type Hooks struct {
	JobStarted   func(job *queue.Job)
	JobCompleted func(job *queue.Job)
	JobFailed    func(job *queue.Job, reason string)
}

// Config tunes one worker loop.
type Config struct {
	WorkerID string
	// Types limits which queues this worker pulls from. Empty means all.
	Types []queue.JobType
	// MaxJobs stops the loop after that many processed jobs. Zero means run
	// until stopped.
	MaxJobs int
	// StopOnEmpty exits as soon as every watched queue is empty instead of
	// polling. Used by the one-shot CLI mode.
	StopOnEmpty bool
	// PollInterval is the wait between polls when the queues are empty.
	PollInterval time.Duration
	// InterJobDelay is the pause between consecutive jobs so a single worker
	// cannot saturate the generator's rate budget.
	InterJobDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.WorkerID == "" {
		c.WorkerID = "worker-1"
	}
	if len(c.Types) == 0 {
		c.Types = queue.AllTypes
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.InterJobDelay <= 0 {
		c.InterJobDelay = 2 * time.Second
	}
}

// Worker is one generation loop instance.
type Worker struct {
	queue   *queue.Queue
	gen     generator.Generator
	store   ContentStore
	config  Config
	hooks   Hooks
	logger  *zerolog.Logger
	metrics *MetricsRecorder
	tracer  trace.Tracer

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a worker. The content store may be nil, in which case results
// live only on the job record.
func New(q *queue.Queue, gen generator.Generator, store ContentStore, config Config, logger *zerolog.Logger) *Worker {
	config.applyDefaults()
	return &Worker{
		queue:    q,
		gen:      gen,
		store:    store,
		config:   config,
		logger:   logger,
		metrics:  NewMetricsRecorder(),
		tracer:   otel.Tracer("content-service/worker"),
		stopChan: make(chan struct{}),
	}
}

// SetHooks installs event callbacks. Call before Start.
func (w *Worker) SetHooks(h Hooks) { w.hooks = h }

// Start launches the loop in the background. Pair with Stop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Interface("types", w.config.Types).
		Msg("Starting worker")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Run(ctx); err != nil {
			w.logger.Error().Err(err).
				Str("worker_id", w.config.WorkerID).
				Msg("Worker loop exited with error")
		}
	}()
}

// Stop signals the loop and waits for the in-flight job to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopping, waiting for in-flight job")
	w.wg.Wait()
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopped")
}

// Run executes the loop on the calling goroutine until the context ends, the
// stop signal fires, MaxJobs is reached, or StopOnEmpty finds nothing left.
func (w *Worker) Run(ctx context.Context) error {
	processed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopChan:
			return nil
		default:
		}

		job, err := w.next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrNoJob) {
				if w.config.StopOnEmpty {
					w.logger.Info().
						Str("worker_id", w.config.WorkerID).
						Int("processed", processed).
						Msg("Queues drained, worker exiting")
					return nil
				}
				if !w.sleep(ctx, w.config.PollInterval) {
					return nil
				}
				continue
			}
			w.logger.Error().Err(err).
				Str("worker_id", w.config.WorkerID).
				Msg("Dequeue failed")
			if !w.sleep(ctx, w.config.PollInterval) {
				return nil
			}
			continue
		}

		w.process(ctx, job)
		processed++
		if w.config.MaxJobs > 0 && processed >= w.config.MaxJobs {
			w.logger.Info().
				Str("worker_id", w.config.WorkerID).
				Int("processed", processed).
				Msg("Job budget reached, worker exiting")
			return nil
		}
		if !w.sleep(ctx, w.config.InterJobDelay) {
			return nil
		}
	}
}

// next polls the watched queues in type order and returns the first job.
func (w *Worker) next(ctx context.Context) (*queue.Job, error) {
	for _, t := range w.config.Types {
		job, err := w.queue.Dequeue(ctx, t)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, queue.ErrNoJob) {
			return nil, err
		}
	}
	return nil, queue.ErrNoJob
}

// sleep waits for d unless the loop is told to stop first.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stopChan:
		return false
	case <-timer.C:
		return true
	}
}

// process runs one job end to end. Every outcome, including a handler panic,
// ends in exactly one Complete or Fail call.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	ctx, span := w.tracer.Start(ctx, "worker.process",
		trace.WithAttributes(
			attribute.String("job.id", job.ID),
			attribute.String("job.type", string(job.Type)),
			attribute.Int("job.attempts", job.Attempts),
		))
	defer span.End()

	w.metrics.JobStarted()
	defer w.metrics.JobFinished()

	start := time.Now()
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("attempts", job.Attempts).
		Msg("Worker processing job")

	if w.hooks.JobStarted != nil {
		w.hooks.JobStarted(job)
	}
	w.trackRequest(ctx, job)

	result, err := w.dispatch(ctx, job)
	elapsed := time.Since(start)
	w.metrics.ObserveJob(job.Type, err == nil, elapsed)

	if err != nil {
		reason := err.Error()
		span.RecordError(err)
		if failErr := w.queue.Fail(ctx, job.ID, reason); failErr != nil {
			w.logger.Error().Err(failErr).
				Str("job_id", job.ID).
				Msg("Failed to record job failure")
		}
		if w.store != nil {
			if reqErr := w.store.MarkRequestFailed(ctx, job.ID, reason); reqErr != nil {
				w.logger.Warn().Err(reqErr).Str("job_id", job.ID).Msg("Request row update failed")
			}
		}
		if w.hooks.JobFailed != nil {
			w.hooks.JobFailed(job, reason)
		}
		w.logger.Error().
			Str("job_id", job.ID).
			Str("job_type", string(job.Type)).
			Dur("elapsed", elapsed).
			Str("error", reason).
			Msg("Job failed")
		return
	}

	if err := w.queue.Complete(ctx, job.ID, result); err != nil {
		w.logger.Error().Err(err).
			Str("job_id", job.ID).
			Msg("Failed to record job completion")
		return
	}
	if w.store != nil {
		if reqErr := w.store.MarkRequestCompleted(ctx, job.ID, result.ContentID); reqErr != nil {
			w.logger.Warn().Err(reqErr).Str("job_id", job.ID).Msg("Request row update failed")
		}
	}
	if w.hooks.JobCompleted != nil {
		w.hooks.JobCompleted(job)
	}
	w.logger.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Dur("elapsed", elapsed).
		Msg("Worker completed job")
}

// trackRequest mirrors the claim into generation_requests, best effort.
func (w *Worker) trackRequest(ctx context.Context, job *queue.Job) {
	if w.store == nil {
		return
	}
	up := database.RequestUpsert{
		JobID:   job.ID,
		BatchID: job.BatchID,
		Type:    string(job.Type),
		Status:  "processing",
	}
	if p, err := queue.DecodePayload(job.Type, job.Payload); err == nil {
		switch v := p.(type) {
		case queue.ContentPayload:
			up.Keyword = v.Keyword
			up.Locale = v.Locale
		case queue.TranslationPayload:
			up.Locale = v.TargetLocale
		case queue.SEOPayload:
			up.Locale = v.Locale
		}
	}
	if err := w.store.UpsertRequest(ctx, up); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Request row upsert failed")
	}
}

// dispatch executes the generator call and persistence for one job. A panic
// in a handler is converted to an ordinary failure so the loop survives.
func (w *Worker) dispatch(ctx context.Context, job *queue.Job) (res *JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch job.Type {
	case queue.TypeContent:
		return w.handleContent(ctx, job)
	case queue.TypeImage:
		return w.handleImage(ctx, job)
	case queue.TypeTranslation:
		return w.handleTranslation(ctx, job)
	case queue.TypeSEO:
		return w.handleSEO(ctx, job)
	}
	return nil, fmt.Errorf("no handler for job type %q", job.Type)
}
