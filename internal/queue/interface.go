package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a webhook delivery whose signature has been verified by the receiver.
type Event struct {
	// ID is assigned by the receiver (not the provider's event ID)
	ID string `json:"id"`

	// ReceivedAt is when the receiver accepted the delivery
	ReceivedAt time.Time `json:"received_at"`

	// SignedAt is the t field of the signature header
	SignedAt time.Time `json:"signed_at"`

	// Payload is the raw request body, byte for byte
	Payload []byte `json:"payload"`
}

// NewEvent creates an Event with a fresh ID.
func NewEvent(payload []byte, signedAt, receivedAt time.Time) *Event {
	return &Event{
		ID:         uuid.New().String(),
		ReceivedAt: receivedAt.UTC(),
		SignedAt:   signedAt.UTC(),
		Payload:    payload,
	}
}

// Handler processes one event. Returning an error asks the queue to redeliver
// where the implementation supports it.
type Handler func(context.Context, *Event) error

// MessageQueue defines the interface for queue operations.
// Implementations include GCP Pub/Sub, Redis, and in-memory queues.
type MessageQueue interface {
	// Publish sends an Event to the queue.
	Publish(ctx context.Context, event *Event) error

	// Subscribe consumes events and calls handler for each one.
	// It blocks until the context is cancelled or an unrecoverable error occurs.
	Subscribe(ctx context.Context, handler Handler) error

	// Close releases any resources held by the queue client.
	Close() error
}
