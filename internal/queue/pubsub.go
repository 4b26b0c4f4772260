package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubQueue implements MessageQueue using Google Cloud Pub/Sub.
type PubSubQueue struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	logger       *slog.Logger
}

// PubSubConfig holds configuration for creating a PubSubQueue.
type PubSubConfig struct {
	// ProjectID is the GCP project ID
	ProjectID string

	// TopicName is the Pub/Sub topic name
	TopicName string

	// SubscriptionName is the Pub/Sub subscription name. Publish-only
	// receivers may leave it empty.
	SubscriptionName string

	// CreateIfNotExists creates the topic and subscription if they don't exist
	CreateIfNotExists bool

	Logger *slog.Logger
}

// NewPubSubQueue creates a new PubSubQueue instance.
// The caller is responsible for calling Close() when done.
func NewPubSubQueue(ctx context.Context, cfg PubSubConfig) (*PubSubQueue, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if cfg.TopicName == "" {
		return nil, fmt.Errorf("topic name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicName)

	if cfg.CreateIfNotExists {
		exists, err := topic.Exists(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to check topic existence: %w", err)
		}
		if !exists {
			topic, err = client.CreateTopic(ctx, cfg.TopicName)
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to create topic: %w", err)
			}
		}
	}

	q := &PubSubQueue{
		client: client,
		topic:  topic,
		logger: cfg.Logger,
	}

	if cfg.SubscriptionName == "" {
		return q, nil
	}

	sub := client.Subscription(cfg.SubscriptionName)
	if cfg.CreateIfNotExists {
		exists, err := sub.Exists(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to check subscription existence: %w", err)
		}
		if !exists {
			sub, err = client.CreateSubscription(ctx, cfg.SubscriptionName, pubsub.SubscriptionConfig{
				Topic:       topic,
				AckDeadline: 60 * time.Second,
			})
			if err != nil {
				client.Close()
				return nil, fmt.Errorf("failed to create subscription: %w", err)
			}
		}
	}
	q.subscription = sub

	return q, nil
}

// Publish sends an Event to the Pub/Sub topic and waits for the server ack.
func (q *PubSubQueue) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := q.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_id": event.ID,
		},
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe receives from the subscription until the context is cancelled.
// Handler failures nack the message so Pub/Sub redelivers it.
func (q *PubSubQueue) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if q.subscription == nil {
		return fmt.Errorf("subscription name is required to subscribe")
	}

	q.subscription.ReceiveSettings.MaxOutstandingMessages = 10
	q.subscription.ReceiveSettings.NumGoroutines = 4

	err := q.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// Redelivering an undecodable message cannot help
			q.logger.Error("discarding undecodable pubsub message", "message_id", msg.ID, "error", err)
			msg.Ack()
			return
		}

		if err := handler(ctx, &event); err != nil {
			q.logger.Error("handler failed, nacking event", "event_id", event.ID, "error", err)
			msg.Nack()
			return
		}

		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("subscription receive error: %w", err)
	}

	return nil
}

// Close stops the topic publisher and closes the client.
func (q *PubSubQueue) Close() error {
	q.topic.Stop()
	return q.client.Close()
}
