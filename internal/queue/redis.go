package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// readBatchSize is the COUNT of every XREADGROUP, pending replay included.
const readBatchSize = 10

// RedisQueue implements MessageQueue using Redis Streams.
// It uses consumer groups for reliable message processing with acknowledgment.
type RedisQueue struct {
	client        *redis.Client
	streamKey     string
	consumerGroup string
	consumerName  string
	block         time.Duration
	logger        *slog.Logger
}

// RedisConfig holds configuration for creating a RedisQueue.
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string

	// Password is the Redis password (optional)
	Password string

	// DB is the Redis database number (default: 0)
	DB int

	// StreamKey is the Redis stream name
	StreamKey string

	// ConsumerGroup is the consumer group name
	ConsumerGroup string

	// ConsumerName is the consumer name within the group
	ConsumerName string

	// CreateIfNotExists creates the stream and consumer group if they don't exist
	CreateIfNotExists bool

	// BlockTimeout bounds each XREADGROUP call (default: 5s)
	BlockTimeout time.Duration

	Logger *slog.Logger
}

// NewRedisQueue creates a new RedisQueue instance.
// The caller is responsible for calling Close() when done.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.StreamKey == "" {
		return nil, fmt.Errorf("stream key is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if cfg.ConsumerName == "" {
		return nil, fmt.Errorf("consumer name is required")
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	q := &RedisQueue{
		client:        client,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		consumerName:  cfg.ConsumerName,
		block:         cfg.BlockTimeout,
		logger:        cfg.Logger,
	}

	if cfg.CreateIfNotExists {
		// "$": the group only sees events added after it was created.
		err := client.XGroupCreateMkStream(ctx, cfg.StreamKey, cfg.ConsumerGroup, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			client.Close()
			return nil, fmt.Errorf("failed to create consumer group: %w", err)
		}
	}

	return q, nil
}

// Publish appends an Event to the Redis stream.
func (q *RedisQueue) Publish(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: q.streamKey,
		Values: map[string]interface{}{
			"data":     string(data),
			"event_id": event.ID,
		},
	}

	if _, err := q.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event to redis stream: %w", err)
	}

	return nil
}

// Subscribe consumes the stream through the consumer group.
//
// Entries left pending by a previous run of this consumer are replayed first;
// after that only new entries (">") are read. An entry whose handler fails
// stays pending and is replayed on the next Subscribe.
func (q *RedisQueue) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	if err := q.replayPending(ctx, handler); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.logger.Error("failed to replay pending events", "stream", q.streamKey, "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, err := q.read(ctx, ">", q.block, handler)
		if err == nil || errors.Is(err, redis.Nil) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		q.logger.Error("failed to read from redis stream", "stream", q.streamKey, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// replayPending walks this consumer's pending list in batches. Each batch
// resumes after the last ID seen, since entries whose handler fails stay
// pending and would otherwise be returned again.
func (q *RedisQueue) replayPending(ctx context.Context, handler Handler) error {
	start := "0"
	for {
		last, err := q.read(ctx, start, -1, handler)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil
			}
			return err
		}
		if last == "" {
			return nil
		}
		start = last
	}
}

// read performs one XREADGROUP starting at id and processes what it returns.
// A negative block issues a non-blocking read. It returns the ID of the last
// message processed, or "" if there were none.
func (q *RedisQueue) read(ctx context.Context, id string, block time.Duration, handler Handler) (string, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.consumerGroup,
		Consumer: q.consumerName,
		Streams:  []string{q.streamKey, id},
		Count:    readBatchSize,
		Block:    block,
	}).Result()
	if err != nil {
		return "", err
	}

	last := ""
	for _, stream := range streams {
		for _, message := range stream.Messages {
			last = message.ID
			if err := q.processMessage(ctx, message, handler); err != nil {
				q.logger.Error("failed to process event",
					"stream", q.streamKey,
					"message_id", message.ID,
					"error", err,
				)
			}
		}
	}

	return last, nil
}

// processMessage handles a single message from the stream.
func (q *RedisQueue) processMessage(ctx context.Context, msg redis.XMessage, handler Handler) error {
	dataStr, ok := msg.Values["data"].(string)
	if !ok {
		// Unreadable entries are acknowledged so they leave the pending list
		_ = q.client.XAck(ctx, q.streamKey, q.consumerGroup, msg.ID)
		return fmt.Errorf("message data field is not a string")
	}

	var event Event
	if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
		_ = q.client.XAck(ctx, q.streamKey, q.consumerGroup, msg.ID)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if err := handler(ctx, &event); err != nil {
		return fmt.Errorf("handler failed to process event %s: %w", event.ID, err)
	}

	// Acknowledge even if the subscriber is shutting down: the work is done.
	if err := q.client.XAck(context.WithoutCancel(ctx), q.streamKey, q.consumerGroup, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}

	return nil
}

// Close releases resources held by the RedisQueue.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
