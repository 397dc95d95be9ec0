package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/model"
)

// RedisRelay shares fan-out between API replicas: Publish sends the event to a Redis
// Pub/Sub channel and Run feeds everything received on that channel into the local
// Bus. Redis Pub/Sub keeps no history, so delivery stays at-most-once.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Bus
	sub     *redis.PubSub
	alive   atomic.Bool
}

var errNotSubscribed = errors.New("relay is not subscribed")

// NewRedisRelay builds a relay on channel.
func NewRedisRelay(client *redis.Client, channel string, local *Bus) *RedisRelay {
	if channel == "" {
		channel = "rollcall:attendance"
	}
	return &RedisRelay{client: client, channel: channel, local: local}
}

// Publish sends ev to every replica, this one included.
func (r *RedisRelay) Publish(ctx context.Context, ev model.ChangeEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Subscribe joins the channel and waits for redis to confirm the subscription.
// It fails when redis is unreachable; nothing retries it.
func (r *RedisRelay) Subscribe(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.sub = sub
	r.alive.Store(true)
	log.Printf("broadcast: subscribed to redis channel %s", r.channel)
	return nil
}

// Run relays everything received on the channel into the local bus until ctx is
// done or the subscription breaks. Subscribe must have succeeded first.
func (r *RedisRelay) Run(ctx context.Context) error {
	if r.sub == nil {
		return errNotSubscribed
	}
	defer func() {
		r.alive.Store(false)
		_ = r.sub.Close()
	}()

	ch := r.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			ev, err := decode(msg.Payload)
			if err != nil {
				log.Printf("broadcast: skipping malformed relay message: %v", err)
				continue
			}
			if err := r.local.Publish(ctx, ev); err != nil {
				log.Printf("broadcast: relay publish failed: %v", err)
			}
		}
	}
}

// Healthy reports whether the relay is still feeding the local bus and redis
// answers.
func (r *RedisRelay) Healthy(ctx context.Context) bool {
	if !r.alive.Load() {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

func encode(ev model.ChangeEvent) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(payload string) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return model.ChangeEvent{}, err
	}
	return ev, ev.Validate()
}
