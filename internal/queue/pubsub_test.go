package queue

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSubConfig_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  PubSubConfig
		wantErr string
	}{
		{
			name: "missing project ID",
			config: PubSubConfig{
				TopicName:        "test-topic",
				SubscriptionName: "test-sub",
			},
			wantErr: "project ID is required",
		},
		{
			name: "missing topic name",
			config: PubSubConfig{
				ProjectID:        "test-project",
				SubscriptionName: "test-sub",
			},
			wantErr: "topic name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPubSubQueue(ctx, tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPubSubQueue_Validation(t *testing.T) {
	q := &PubSubQueue{}
	ctx := context.Background()

	err := q.Publish(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event cannot be nil")

	err = q.Subscribe(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler cannot be nil")

	err = q.Subscribe(ctx, func(ctx context.Context, e *Event) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription name is required")
}

func TestPubSubQueue_Emulated(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", srv.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	q, err := NewPubSubQueue(ctx, PubSubConfig{
		ProjectID:         "test-project",
		TopicName:         "webhooksig-events",
		SubscriptionName:  "webhooksig-archiver",
		CreateIfNotExists: true,
	})
	require.NoError(t, err)
	defer q.Close()

	event := testEvent(`{"id":"evt_1","type":"charge.succeeded"}`)
	require.NoError(t, q.Publish(ctx, event))

	received := make(chan *Event, 1)
	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	go func() {
		err := q.Subscribe(subCtx, func(ctx context.Context, e *Event) error {
			received <- e
			subCancel()
			return nil
		})
		assert.NoError(t, err)
	}()

	select {
	case e := <-received:
		assert.Equal(t, event.ID, e.ID)
		assert.Equal(t, event.Payload, e.Payload)
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, event.ID, msgs[0].Attributes["event_id"])
}
