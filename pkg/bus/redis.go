package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes to a Redis Pub/Sub channel per topic. It reuses
// the same client the rest of the engine uses for concurrency caps, so
// adopting a message bus doesn't add a new dependency.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, topic, data).Err()
}

var _ Publisher = (*RedisPublisher)(nil)
