package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryQueue implements MessageQueue using an in-memory channel.
// It is meant for all-in-one mode where receiver and worker share a process.
type InMemoryQueue struct {
	ch     chan *Event
	closed bool
	mu     sync.RWMutex
	logger *slog.Logger
}

// InMemoryConfig holds configuration for creating an InMemoryQueue.
type InMemoryConfig struct {
	// BufferSize is the channel buffer size (default: 100)
	BufferSize int

	Logger *slog.Logger
}

// NewInMemoryQueue creates a new InMemoryQueue instance.
// The caller is responsible for calling Close() when done.
func NewInMemoryQueue(cfg InMemoryConfig) *InMemoryQueue {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &InMemoryQueue{
		ch:     make(chan *Event, bufferSize),
		logger: cfg.Logger,
	}
}

// Publish sends an Event to the in-memory queue.
func (q *InMemoryQueue) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	}
}

// Subscribe consumes events until the context is cancelled or the queue is closed.
// Failed events are logged and dropped; there is no redelivery.
func (q *InMemoryQueue) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	for {
		select {
		case event, ok := <-q.ch:
			if !ok {
				return nil
			}

			if err := handler(ctx, event); err != nil {
				q.logger.Error("dropping event after handler failure",
					"event_id", event.ID,
					"error", err,
				)
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and prevents further publishing.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.ch)
	return nil
}
