package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStorage implements the Storage interface using Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// GCSConfig holds the configuration for GCS client initialization.
type GCSConfig struct {
	Bucket string
}

// NewGCSStorage creates a new GCS storage client.
// It uses Application Default Credentials (ADC) for authentication.
func NewGCSStorage(ctx context.Context, cfg GCSConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// SaveEvent stores an event as a JSON object.
func (g *GCSStorage) SaveEvent(ctx context.Context, key EventKey, data []byte) error {
	if err := ValidateEventKey(key); err != nil {
		return err
	}

	objectPath := ObjectPath(key)
	w := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", objectPath, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectPath, err)
	}

	return nil
}

// GetEvent retrieves an archived event.
// Returns nil if the event does not exist.
func (g *GCSStorage) GetEvent(ctx context.Context, key EventKey) ([]byte, error) {
	if err := ValidateEventKey(key); err != nil {
		return nil, err
	}

	objectPath := ObjectPath(key)
	r, err := g.client.Bucket(g.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open GCS object %s: %w", objectPath, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", objectPath, err)
	}

	return data, nil
}

// ListEvents lists object paths under prefix.
func (g *GCSStorage) ListEvents(ctx context.Context, prefix string) ([]string, error) {
	var files []string

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{
		Prefix: prefix,
	})

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		files = append(files, attrs.Name)
	}

	return files, nil
}

// Close releases resources held by the storage client.
func (g *GCSStorage) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
