package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge routes published payloads through a Redis channel per topic
// and fans messages arriving on those channels into the local hub. With
// every instance publishing and subscribing through the same channels,
// subscribers reach updates regardless of which instance accepted them.
type RedisBridge struct {
	client *redis.Client
	prefix string
	local  Subscribers
	logger *zap.Logger
}

// NewRedisBridge connects to Redis and verifies the connection.
func NewRedisBridge(ctx context.Context, url, channelPrefix string, local Subscribers, logger *zap.Logger) (*RedisBridge, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisBridge{
		client: client,
		prefix: channelPrefix,
		local:  local,
		logger: logger,
	}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", topic, err)
	}
	return nil
}

// Run consumes the bridge channels and fans messages into the local hub
// until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	b.logger.Info("redis bridge running", zap.String("pattern", b.prefix+"*"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic := strings.TrimPrefix(msg.Channel, b.prefix)
			b.local.Publish(topic, []byte(msg.Payload))
		}
	}
}

// Close releases the Redis connection.
func (b *RedisBridge) Close() error {
	return b.client.Close()
}
