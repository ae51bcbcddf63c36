// Package events publishes license lifecycle events on Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/poyrazK/cloudLicense/internal/core/domain"
	"github.com/poyrazK/cloudLicense/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const Channel = "license:events"

type RedisPublisher struct {
	client *redis.Client
}

var _ ports.EventPublisher = (*RedisPublisher)(nil)

func NewRedisPublisher(addr string, password string, db int) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: rdb}
}

// Publish sends the event as JSON to every subscriber of Channel.
func (p *RedisPublisher) Publish(ctx context.Context, event domain.LicenseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	return p.client.Publish(ctx, Channel, payload).Err()
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
