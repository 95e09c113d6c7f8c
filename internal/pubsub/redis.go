package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker relays events between API instances over redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBrokerWithClient(client), nil
}

func NewRedisBrokerWithClient(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client: client,
		prefix: "synkris:doc:",
	}
}

func (b *RedisBroker) channel(documentID string) string {
	return b.prefix + documentID
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(event.DocumentID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns once redis has confirmed the subscription, so an event
// published after Subscribe returns is never missed.
func (b *RedisBroker) Subscribe(ctx context.Context, documentID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(documentID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", documentID, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	sub := &Subscription{C: out, close: func() { close(done) }}

	go func() {
		defer close(out)
		defer ps.Close()
		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("pubsub: drop malformed event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()
	return sub, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
