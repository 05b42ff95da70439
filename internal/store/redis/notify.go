package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/whiterails/internal/dispatch"
)

// Publisher fans notify actions out on a Redis channel
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher creates a publisher for channel
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Channel() string { return p.channel }

// PublishNotification implements dispatch.Publisher
func (p *Publisher) PublishNotification(ctx context.Context, n dispatch.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe returns a channel of decoded notifications. It is closed when
// ctx is done.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan dispatch.Notification, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	// Wait for the subscription confirmation so no message is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
	}

	out := make(chan dispatch.Notification)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var n dispatch.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
