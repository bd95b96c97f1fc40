package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBroker publishes on core NATS subjects. The channel name is used as the
// subject as-is, so "alerts.alert" can be matched with "alerts.>".
type NATSBroker struct {
	nc *nats.Conn
}

func NewNATSBroker(url string) (*NATSBroker, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("sheild-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSBroker{nc: nc}, nil
}

func (b *NATSBroker) Publish(_ context.Context, channel string, payload []byte) error {
	if err := b.nc.Publish(channel, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	s := &natsSub{ch: make(chan Message, memoryBuffer)}
	sub, err := b.nc.Subscribe(channel, func(m *nats.Msg) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		select {
		case s.ch <- Message{Channel: m.Subject, Payload: m.Data}:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", channel, err)
	}
	// Make sure the server has registered interest before returning.
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	s.sub = sub

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

func (b *NATSBroker) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}

type natsSub struct {
	sub    *nats.Subscription
	ch     chan Message
	mu     sync.Mutex
	closed bool
}

func (s *natsSub) C() <-chan Message { return s.ch }

func (s *natsSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return s.sub.Unsubscribe()
}
