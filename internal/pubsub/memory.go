package pubsub

import (
	"context"
	"sync"
)

const memoryBuffer = 64

// MemoryBroker fans messages out to in-process subscribers. A subscriber
// whose buffer is full misses the message rather than blocking the publisher.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySub]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs[channel] {
		msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySub{broker: b, channel: channel, ch: make(chan Message, memoryBuffer)}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySub]struct{})
	}
	b.subs[channel][s] = struct{}{}

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			s.once.Do(func() { close(s.ch) })
		}
	}
	b.subs = map[string]map[*memorySub]struct{}{}
	return nil
}

type memorySub struct {
	broker  *MemoryBroker
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *memorySub) C() <-chan Message { return s.ch }

func (s *memorySub) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if set, ok := s.broker.subs[s.channel]; ok {
		delete(set, s)
	}
	s.once.Do(func() { close(s.ch) })
	return nil
}
