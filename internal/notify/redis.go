package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

type RedisNotifier struct {
	client  *redis.Client
	breaker *Breaker
	log     *slog.Logger
}

func NewRedisNotifier(client *redis.Client, breaker *Breaker, log *slog.Logger) *RedisNotifier {
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	return &RedisNotifier{client: client, breaker: breaker, log: log}
}

func (n *RedisNotifier) Publish(ctx context.Context, channel string, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return n.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return n.client.Publish(ctx, channel, payload).Err()
	})
}

func (n *RedisNotifier) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := n.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, events: make(chan Event, 16), done: make(chan struct{})}
	go sub.pump(n.log)
	return sub, nil
}

func (n *RedisNotifier) Breaker() *Breaker {
	return n.breaker
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump(log *slog.Logger) {
	defer close(s.events)

	for msg := range s.ps.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
			continue
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
