// Package handlers exposes the queue over HTTP for the site backend and the
// operations dashboard. All routes sit behind the internal API key; nothing
// here is public-facing.
package handlers

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/medvoyage/content-service/internal/queue"
)

// timeNow is swappable in tests.
var timeNow = time.Now

// Handlers bundles the route implementations and their dependencies.
type Handlers struct {
	queue  *queue.Queue
	logger *zerolog.Logger
	// dbStatus reports content store connectivity for the health check. Nil
	// means the service runs without a content database.
	dbStatus func() error
}

// New creates the handler set.
func New(q *queue.Queue, logger *zerolog.Logger, dbStatus func() error) *Handlers {
	return &Handlers{queue: q, logger: logger, dbStatus: dbStatus}
}
