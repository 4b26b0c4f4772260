package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(body string) *Event {
	now := time.Now()
	return NewEvent([]byte(body), now.Add(-time.Second), now)
}

func TestNewEvent(t *testing.T) {
	signedAt := time.Unix(1700000000, 0)
	receivedAt := signedAt.Add(2 * time.Second)

	a := NewEvent([]byte(`{"id":"evt_1"}`), signedAt, receivedAt)
	b := NewEvent([]byte(`{"id":"evt_1"}`), signedAt, receivedAt)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.True(t, a.SignedAt.Equal(signedAt))
	assert.True(t, a.ReceivedAt.Equal(receivedAt))
	assert.Equal(t, time.UTC, a.ReceivedAt.Location())
	assert.Equal(t, []byte(`{"id":"evt_1"}`), a.Payload)
}

func TestNewInMemoryQueue(t *testing.T) {
	t.Run("default buffer size", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})
		require.NotNil(t, q)
		assert.False(t, q.closed)
		assert.Equal(t, 100, cap(q.ch))
	})

	t.Run("custom buffer size", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{BufferSize: 50})
		assert.Equal(t, 50, cap(q.ch))
	})

	t.Run("negative buffer size uses default", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{BufferSize: -10})
		assert.Equal(t, 100, cap(q.ch))
	})
}

func TestInMemoryQueue_PublishValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("nil event", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})
		err := q.Publish(ctx, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event cannot be nil")
	})

	t.Run("publish to closed queue", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})
		require.NoError(t, q.Close())

		err := q.Publish(ctx, testEvent("{}"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue is closed")
	})

	t.Run("publish with cancelled context", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{BufferSize: 1})
		require.NoError(t, q.Publish(ctx, testEvent("first")))

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := q.Publish(cancelled, testEvent("second"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publish cancelled")
	})
}

func TestInMemoryQueue_SubscribeValidation(t *testing.T) {
	q := NewInMemoryQueue(InMemoryConfig{})

	err := q.Subscribe(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler cannot be nil")
}

func TestInMemoryQueue_PublishAndSubscribe(t *testing.T) {
	t.Run("events arrive in order with payload intact", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})
		ctx := context.Background()

		events := []*Event{testEvent(`{"n":1}`), testEvent(`{"n":2}`), testEvent(`{"n":3}`)}
		for _, e := range events {
			require.NoError(t, q.Publish(ctx, e))
		}

		var mu sync.Mutex
		received := make([]*Event, 0, len(events))
		subCtx, subCancel := context.WithCancel(ctx)
		defer subCancel()

		go func() {
			err := q.Subscribe(subCtx, func(ctx context.Context, e *Event) error {
				mu.Lock()
				received = append(received, e)
				if len(received) == len(events) {
					subCancel()
				}
				mu.Unlock()
				return nil
			})
			assert.ErrorIs(t, err, context.Canceled)
		}()

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == len(events)
		}, time.Second, 10*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		for i, e := range events {
			assert.Equal(t, e.ID, received[i].ID)
			assert.Equal(t, e.Payload, received[i].Payload)
		}
	})

	t.Run("handler error doesn't stop subscription", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			require.NoError(t, q.Publish(ctx, testEvent("{}")))
		}

		var mu sync.Mutex
		count := 0
		subCtx, subCancel := context.WithCancel(ctx)
		defer subCancel()

		go func() {
			_ = q.Subscribe(subCtx, func(ctx context.Context, e *Event) error {
				mu.Lock()
				count++
				n := count
				mu.Unlock()

				if n == 3 {
					subCancel()
				}
				if n == 2 {
					return assert.AnError
				}
				return nil
			})
		}()

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return count == 3
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("context cancellation stops subscription", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})

		subCtx, subCancel := context.WithCancel(context.Background())
		subCancel()

		err := q.Subscribe(subCtx, func(ctx context.Context, e *Event) error {
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closing queue stops subscription", func(t *testing.T) {
		q := NewInMemoryQueue(InMemoryConfig{})

		done := make(chan struct{})
		go func() {
			err := q.Subscribe(context.Background(), func(ctx context.Context, e *Event) error {
				return nil
			})
			assert.NoError(t, err)
			close(done)
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, q.Close())

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("subscription didn't stop after queue close")
		}
	})
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(InMemoryConfig{})
	require.NoError(t, q.Close())
	assert.True(t, q.closed)

	// second close is a no-op
	require.NoError(t, q.Close())
}

func TestInMemoryQueue_ConcurrentPublishers(t *testing.T) {
	q := NewInMemoryQueue(InMemoryConfig{BufferSize: 1000})
	ctx := context.Background()

	const publishers, perPublisher = 10, 100
	total := publishers * perPublisher

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				assert.NoError(t, q.Publish(ctx, testEvent("{}")))
			}
		}()
	}

	var mu sync.Mutex
	seen := make(map[string]bool, total)
	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	go func() {
		_ = q.Subscribe(subCtx, func(ctx context.Context, e *Event) error {
			mu.Lock()
			seen[e.ID] = true
			if len(seen) == total {
				subCancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	wg.Wait()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	}, 5*time.Second, 10*time.Millisecond)
}
