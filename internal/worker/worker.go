// Package worker archives verified events from the queue into storage.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/metrics"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/queue"
	"github.com/oleg-kozlyuk-grafana/go-webhooksig/internal/storage"
)

// Config holds the dependencies of a Worker.
type Config struct {
	Queue   queue.MessageQueue
	Storage storage.Storage
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Worker consumes events and writes each one to storage as JSON.
type Worker struct {
	queue   queue.MessageQueue
	storage storage.Storage
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Worker. Queue and Storage are required.
func New(cfg Config) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		queue:   cfg.Queue,
		storage: cfg.Storage,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}, nil
}

// Run blocks consuming the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	err := w.queue.Subscribe(ctx, w.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("subscription failed: %w", err)
	}
	w.logger.Info("worker stopped")
	return nil
}

// Handle archives one event. The error is returned to the queue so that
// backends with redelivery try again.
func (w *Worker) Handle(ctx context.Context, event *queue.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	key := storage.EventKey{ID: event.ID, ReceivedAt: event.ReceivedAt}
	if err := w.storage.SaveEvent(ctx, key, data); err != nil {
		return fmt.Errorf("failed to archive event %s: %w", event.ID, err)
	}

	w.metrics.EventsArchived.Inc()
	w.logger.Info("event archived",
		"event_id", event.ID,
		"path", storage.ObjectPath(key),
		"bytes", len(data),
	)
	return nil
}
