package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisTier is an optional shared cache layer in front of the venue API,
// letting multiple scanner processes reuse each other's fetches. Payloads
// are opaque bytes; callers own the codec. A Redis failure is treated as a
// miss, never surfaced to the evaluation path.
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier connects a shared tier at addr.
func NewRedisTier(addr string) *RedisTier {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisTier{client: client, prefix: "sigscreen:"}
}

// NewRedisTierWithClient wraps an existing client, used by tests.
func NewRedisTierWithClient(client *redis.Client) *RedisTier {
	return &RedisTier{client: client, prefix: "sigscreen:"}
}

// GetBytes returns the payload for key, or false on miss or Redis error.
func (t *RedisTier) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	data, err := t.client.Get(ctx, t.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("redis tier get failed")
		}
		return nil, false
	}
	return data, true
}

// SetBytes stores the payload under key with the TTL. Errors are logged and
// swallowed; the local tier still holds the value.
func (t *RedisTier) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := t.client.Set(ctx, t.prefix+key, data, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis tier set failed")
	}
}

// Ping tests connectivity to the shared tier.
func (t *RedisTier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (t *RedisTier) Close() error {
	return t.client.Close()
}
