// Package pubsub carries real-time events between the gateway's producers and
// consumers over a namespaced channel.
package pubsub

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned when publishing on a closed broker.
var ErrClosed = errors.New("pubsub: broker closed")

// Message is one event received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription delivers messages for one channel until closed.
type Subscription interface {
	C() <-chan Message
	Close() error
}

// Broker publishes and subscribes to named channels.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Channel builds the wire name of an event in a namespace, e.g. "alerts.alert".
func Channel(namespace, event string) string {
	if namespace == "" {
		return event
	}
	return fmt.Sprintf("%s.%s", namespace, event)
}

// Config selects and configures a backend.
type Config struct {
	Backend string `mapstructure:"backend"` // memory, redis or nats
	Redis   struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	NATS struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"nats"`
}

// Open connects the backend named in cfg.
func Open(ctx context.Context, cfg Config) (Broker, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBroker(), nil
	case "redis":
		return NewRedisBroker(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	case "nats":
		return NewNATSBroker(cfg.NATS.URL)
	default:
		return nil, fmt.Errorf("pubsub: unknown backend %q", cfg.Backend)
	}
}
