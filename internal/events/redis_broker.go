package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "monitor:"

// RedisBroker fans events out between service instances over Redis pub/sub
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisBroker(client *redis.Client, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		logger: logger,
	}
}

func (r *RedisBroker) Publish(ctx context.Context, topic string, event *MonitorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal monitor event: %w", err)
	}

	if err := r.client.Publish(ctx, redisChannelPrefix+topic, payload).Err(); err != nil {
		r.logger.Error("Failed to publish monitor event",
			"event_id", event.ID,
			"topic", topic,
			"error", err)
		return fmt.Errorf("failed to publish monitor event: %w", err)
	}
	return nil
}

func (r *RedisBroker) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to monitor channels: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event MonitorEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("Dropping malformed monitor event", "channel", msg.Channel, "error", err)
				continue
			}
			handler(strings.TrimPrefix(msg.Channel, redisChannelPrefix), &event)
		}
	}
}

// Close is a no-op; the redis client is owned by the caller
func (r *RedisBroker) Close() error {
	return nil
}
