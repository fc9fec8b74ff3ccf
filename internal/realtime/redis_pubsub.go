package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Channel carries every change notice between instances.
	Channel        = "events:changes"
	publishTimeout = 5 * time.Second
)

// RedisPubSub implements Relay with Redis pub/sub.
type RedisPubSub struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub relay on Channel.
func NewRedisPubSub(client redis.UniversalClient, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, channel: Channel, logger: logger}
}

// Publish sends body to the channel.
func (r *RedisPubSub) Publish(ctx context.Context, body []byte) error {
	return r.client.Publish(ctx, r.channel, body).Err()
}

// Subscribe calls handler for each message until cancel is called or ctx ends.
func (r *RedisPubSub) Subscribe(ctx context.Context, handler func(body []byte)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	r.logger.Info("realtime relay subscribed", zap.String("channel", r.channel))
	return cancelCtx, nil
}
