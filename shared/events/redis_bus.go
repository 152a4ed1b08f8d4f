package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/eaglebank/ledger/shared/logger"
)

// RedisBus publishes notifications over Redis pub/sub.
type RedisBus struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRedisBus(rdb *goredis.Client, log *logger.Logger) *RedisBus {
	return &RedisBus{log: log.With("service", "RedisNotificationBus"), rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, msg Notification) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, topic, raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topic)

	// ensures subscription actually started
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan Notification, 16), done: make(chan struct{})}
	go sub.forward(ctx, b.log)
	return sub, nil
}

type redisSubscription struct {
	ps   *goredis.PubSub
	out  chan Notification
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward(ctx context.Context, log *logger.Logger) {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			var msg Notification
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Warn("bad notification payload", "channel", m.Channel, "error", err)
				continue
			}
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Notification { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
