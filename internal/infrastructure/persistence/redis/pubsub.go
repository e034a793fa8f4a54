package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vibecoding/vibe-academy/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// PubSub adapts a go-redis client to messaging.PubSubClient.
type PubSub struct {
	client *redis.Client
	buffer int
}

// NewPubSub creates a pub/sub adapter on the cache's client.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{client: cache.Client(), buffer: 100}
}

// Publish sends message to channel.
func (p *PubSub) Publish(ctx context.Context, channel string, message string) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to channels and forwards messages until ctx is
// cancelled. The subscription is confirmed before returning.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.PubSubMessage, error) {
	sub := p.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan messaging.PubSubMessage, p.buffer)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.PubSubMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
