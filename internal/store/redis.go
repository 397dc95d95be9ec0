package store

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the client used by the broadcast relay.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client with short timeouts. Pub/Sub reads block, so
// ReadTimeout only bounds regular commands.
func NewRedis(addr string) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

// Close releases the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
