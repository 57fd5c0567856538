package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sourcemarket/sourcemarket-api/logger"
)

// RedisOptions configures the shared Redis connection
type RedisOptions struct {
	Addrs    []string
	Password string
	DB       int
}

// NewRedisClient connects to Redis (standalone or cluster) and checks it responds
func NewRedisClient(opts RedisOptions) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           opts.Addrs,
		DB:              opts.DB,
		Password:        opts.Password,
		PoolSize:        50,
		MinIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisBroker fans events out across API instances through Redis pub/sub.
// Every instance receives every event of the tables it listens on.
type RedisBroker struct {
	client redis.UniversalClient
	buffer int
}

// NewRedisBroker wraps an existing client. The broker does not own it.
func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{client: client, buffer: DefaultBuffer}
}

func channelName(table string) string {
	return "realtime:" + table
}

// Publish sends event on the table's channel
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(event.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe listens on the table's channel. It returns once Redis has
// confirmed the subscription, so events published afterwards are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, table string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelName(table))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub := newSubscription(table, b.buffer)
	sub.release = func() {
		_ = pubsub.Close()
	}

	// The forwarding goroutine is the only sender, so it owns closing events
	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("discarding malformed realtime payload", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case sub.events <- event:
			case <-sub.done:
				return
			default:
				logger.Warn("realtime subscriber is full, dropping event",
					"table", event.Table, "event_id", event.ID, "row_id", event.RowID)
			}
		}
	}()

	sub.closeWith(ctx)
	return sub, nil
}

// Close is a no-op; the client is closed by whoever created it
func (b *RedisBroker) Close() error {
	return nil
}
