package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker uses Redis PUBLISH/SUBSCRIBE. go-redis re-establishes dropped
// subscriptions on its own; messages published while disconnected are lost.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to addr and verifies the connection with PING.
func NewRedisBroker(ctx context.Context, addr, password string, db int) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisBroker{client: rdb}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so publishes that follow are seen.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	s := &redisSub{ps: ps, ch: make(chan Message, memoryBuffer)}
	go s.forward(ctx)
	return s, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSub struct {
	ps *redis.PubSub
	ch chan Message
}

func (s *redisSub) forward(ctx context.Context) {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.ps.Close()
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Channel: m.Channel, Payload: []byte(m.Payload)}:
			case <-ctx.Done():
				_ = s.ps.Close()
				return
			}
		}
	}
}

func (s *redisSub) C() <-chan Message { return s.ch }

func (s *redisSub) Close() error {
	return s.ps.Close()
}
