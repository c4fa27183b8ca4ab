// Package eventbus carries domain events between the API and the
// notification listeners over Redis pub/sub.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one payload received on a subscription.
type Message struct {
	Topic   string
	Payload []byte
}

type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// Subscription is owned by a single reader.
type Subscription interface {
	// Poll waits at most timeout for the next message. It returns a nil
	// message and nil error when nothing arrived in time.
	Poll(ctx context.Context, timeout time.Duration) (*Message, error)
	// Close unsubscribes from every topic. It is idempotent.
	Close() error
}

var ErrSubscriptionClosed = errors.New("subscription closed")

type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns once the server has confirmed every topic, so messages
// published after it returns are never missed by this subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.New("subscribe: no topics")
	}

	ps := b.client.Subscribe(ctx, topics...)
	for range topics {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe to %v: %w", topics, err)
		}
	}
	return &redisSubscription{ps: ps, topics: topics}, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type redisSubscription struct {
	ps     *redis.PubSub
	topics []string

	mu     sync.Mutex
	closed bool
}

func (s *redisSubscription) Poll(ctx context.Context, timeout time.Duration) (*Message, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSubscriptionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := s.ps.ReceiveTimeout(ctx, timeout)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, err
	}

	switch msg := raw.(type) {
	case *redis.Message:
		return &Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}, nil
	default:
		// subscription confirmations and pongs
		return nil, nil
	}
}

func (s *redisSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	unsubErr := s.ps.Unsubscribe(ctx, s.topics...)
	closeErr := s.ps.Close()
	return errors.Join(unsubErr, closeErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
