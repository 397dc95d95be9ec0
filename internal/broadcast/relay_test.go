package broadcast

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/model"
)

func TestRelaySubscribeFailsWhenRedisIsUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	defer client.Close()
	relay := NewRedisRelay(client, "rollcall:test", NewBus())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := relay.Subscribe(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe rollcall:test")
	assert.False(t, relay.Healthy(ctx))
	assert.ErrorIs(t, relay.Run(ctx), errNotSubscribed)
}

func TestRelayFeedsLocalBus(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	bus := NewBus()
	got := make(chan model.ChangeEvent, 1)
	bus.Subscribe("test", func(_ context.Context, ev model.ChangeEvent) error {
		got <- ev
		return nil
	})

	relay := NewRedisRelay(client, "rollcall:test:"+time.Now().Format("150405.000000"), bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, relay.Subscribe(ctx))
	assert.True(t, relay.Healthy(ctx))

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.NoError(t, relay.Publish(ctx, single("s1")))
	select {
	case ev := <-got:
		assert.Equal(t, "s1", ev.Record.StudentID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not relayed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.False(t, relay.Healthy(context.Background()))
}
