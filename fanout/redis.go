package fanout

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-integrations/core"
)

// RedisBroadcaster publishes on "<topic>:<userId>" so every replica holding a
// live connection for the user can forward it.
type RedisBroadcaster struct {
	client redis.UniversalClient
}

func NewRedisBroadcaster(client redis.UniversalClient) (*RedisBroadcaster, error) {
	if client == nil {
		return nil, fmt.Errorf("fanout: redis client is required")
	}
	return &RedisBroadcaster{client: client}, nil
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, topic string, userID string, message []byte) error {
	if err := b.client.Publish(ctx, Channel(topic, userID), message).Err(); err != nil {
		return fmt.Errorf("fanout: redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for one user's channel.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, topic string, userID string) *redis.PubSub {
	return b.client.Subscribe(ctx, Channel(topic, userID))
}

func Channel(topic string, userID string) string {
	return strings.TrimSpace(topic) + ":" + strings.TrimSpace(userID)
}

var _ core.Broadcaster = (*RedisBroadcaster)(nil)
