package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventKey uniquely identifies an archived webhook event.
// Storage path format: events/{yyyy}/{mm}/{dd}/{id}.json
type EventKey struct {
	ID         string
	ReceivedAt time.Time
}

// Storage defines the interface for archiving verified webhook deliveries.
// Implementations include GCS for production, MinIO for self-hosted
// deployments and an in-memory store for all-in-one development runs.
type Storage interface {
	// SaveEvent stores the serialized event under key, overwriting any
	// previous object.
	SaveEvent(ctx context.Context, key EventKey, data []byte) error

	// GetEvent retrieves an archived event.
	// Returns nil if the event does not exist.
	GetEvent(ctx context.Context, key EventKey) ([]byte, error)

	// ListEvents returns the object paths under prefix, e.g. DayPrefix(t).
	ListEvents(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the storage client.
	Close() error
}

// ObjectPath creates the object path from an event key.
func ObjectPath(key EventKey) string {
	return DayPrefix(key.ReceivedAt) + key.ID + ".json"
}

// DayPrefix is the listing prefix for all events received on t's UTC day.
func DayPrefix(t time.Time) string {
	return t.UTC().Format("events/2006/01/02/")
}

// ValidateEventKey validates that the event key fields are set.
func ValidateEventKey(key EventKey) error {
	if key.ID == "" {
		return errors.New("event ID is required")
	}
	if key.ReceivedAt.IsZero() {
		return errors.New("received time is required")
	}
	return nil
}

// Type names a storage backend.
type Type string

const (
	TypeGCS    Type = "gcs"
	TypeMinio  Type = "minio"
	TypeMemory Type = "memory"
)

// Config selects and configures a backend for New.
type Config struct {
	Type  Type
	GCS   GCSConfig
	MinIO MinIOConfig
}

// New opens the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeGCS:
		s, err := NewGCSStorage(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeMinio:
		s, err := NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return s, nil
	case TypeMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
