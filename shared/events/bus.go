package events

import (
	"context"
	"sync"
	"time"
)

// Bus carries notifications between the projection side and client-facing
// subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Notification) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is a live topic subscription. Close must be called on every
// exit path; it is safe to call more than once.
type Subscription interface {
	Messages() <-chan Notification
	Close() error
}

// WaitFor blocks until a notification for entityID arrives on topic, the
// timeout elapses, or ctx is cancelled. The subscription is always released.
func WaitFor(ctx context.Context, bus Bus, topic, entityID string, timeout time.Duration) (Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sub, err := bus.Subscribe(ctx, topic)
	if err != nil {
		return Notification{}, err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return Notification{}, ctx.Err()
				}
				return Notification{}, context.Canceled
			}
			if msg.EntityID == entityID {
				return msg, nil
			}
		}
	}
}

// MemoryBus is an in-process Bus. Slow subscribers drop messages rather than
// block publishers.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]map[*memorySubscription]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, msg Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{bus: b, topic: topic, ch: make(chan Notification, 16)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return sub, nil
}

// Subscribers reports the number of open subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

type memorySubscription struct {
	bus   *MemoryBus
	topic string
	ch    chan Notification
	once  sync.Once
}

func (s *memorySubscription) Messages() <-chan Notification { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.topics[s.topic], s)
		if len(s.bus.topics[s.topic]) == 0 {
			delete(s.bus.topics, s.topic)
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}
