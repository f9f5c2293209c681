// Package sweepers runs the background maintenance loops the queue depends
// on: promoting due delayed jobs, reclaiming stale processing jobs, and
// purging expired records.
package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/medvoyage/content-service/internal/queue"
)

// QueueSweeper periodically runs queue maintenance.
type QueueSweeper struct {
	queue           *queue.Queue
	logger          *zerolog.Logger
	promoteInterval time.Duration
	reclaimInterval time.Duration
	purgeInterval   time.Duration
	stopChan        chan struct{}
}

// NewQueueSweeper creates the maintenance loop. Zero intervals fall back to
// defaults: promote every 5s, reclaim every minute, purge hourly.
func NewQueueSweeper(q *queue.Queue, logger *zerolog.Logger, promote, reclaim, purge time.Duration) *QueueSweeper {
	if promote <= 0 {
		promote = 5 * time.Second
	}
	if reclaim <= 0 {
		reclaim = time.Minute
	}
	if purge <= 0 {
		purge = time.Hour
	}
	return &QueueSweeper{
		queue:           q,
		logger:          logger,
		promoteInterval: promote,
		reclaimInterval: reclaim,
		purgeInterval:   purge,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the periodic sweeps and blocks until stopped.
func (s *QueueSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("promote_interval", s.promoteInterval).
		Dur("reclaim_interval", s.reclaimInterval).
		Dur("purge_interval", s.purgeInterval).
		Msg("Starting queue sweeper")

	promote := time.NewTicker(s.promoteInterval)
	defer promote.Stop()
	reclaim := time.NewTicker(s.reclaimInterval)
	defer reclaim.Stop()
	purge := time.NewTicker(s.purgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Queue sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Queue sweeper stopping (stop signal)")
			return
		case <-promote.C:
			s.PromoteDue(ctx)
		case <-reclaim.C:
			s.ReclaimStale(ctx)
		case <-purge.C:
			s.PurgeExpired(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *QueueSweeper) Stop() {
	close(s.stopChan)
}

// PromoteDue moves delayed jobs whose time has come into the pending queues.
func (s *QueueSweeper) PromoteDue(ctx context.Context) {
	total := 0
	for _, t := range queue.AllTypes {
		n, err := s.queue.PromoteDue(ctx, t)
		if err != nil {
			s.logger.Error().Err(err).Str("type", string(t)).Msg("Failed to promote delayed jobs")
			continue
		}
		total += n
	}
	if total > 0 {
		s.logger.Debug().Int("promoted", total).Msg("Promoted delayed jobs")
	}
}

// ReclaimStale fails processing jobs whose deadline passed so the retry
// policy can take over.
func (s *QueueSweeper) ReclaimStale(ctx context.Context) {
	n, err := s.queue.ReclaimStale(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to reclaim stale jobs")
		return
	}
	if n > 0 {
		s.logger.Info().Int("reclaimed", n).Msg("Reclaimed stale processing jobs")
	}
}

// PurgeExpired removes terminal jobs past their retention window.
func (s *QueueSweeper) PurgeExpired(ctx context.Context) {
	res, err := s.queue.Purge(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to purge expired jobs")
		return
	}
	if res.Completed > 0 || res.Dead > 0 {
		s.logger.Info().
			Int("completed", res.Completed).
			Int("dead", res.Dead).
			Msg("Purged expired jobs")
	}
}
