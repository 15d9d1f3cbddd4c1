package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Service backed by Redis string keys.
// Every successful Set publishes the written key on the namespace's data
// events channel so other processes sharing the backend can react.
// The store is safe for concurrent use.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a Redis-backed store for the given namespace.
// Returns an error if namespace is empty.
func NewRedisStore(redisOpts *redis.Options, namespace string) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for components sharing the connection.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

// Get implements Service.
func (s *RedisStore) Get(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		if errors.Is(err, redis.ErrClosed) {
			return false, ErrClosed
		}
		return false, fmt.Errorf("failed to read %q from Redis: %w", key, err)
	}

	if err := decode(key, data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Service.
func (s *RedisStore) Set(ctx context.Context, key string, v any) error {
	data, err := encode(key, v)
	if err != nil {
		return err
	}

	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("failed to write %q to Redis: %w", key, err)
	}

	channel := boards.DataEventsChannel(s.namespace)
	if err := s.rdb.Publish(ctx, channel, key).Err(); err != nil {
		return fmt.Errorf("failed to publish data event for %q: %w", key, err)
	}

	return nil
}

// Subscription delivers the keys written through any store sharing the namespace.
// Caller must call Close() when done.
type Subscription struct {
	keys   <-chan string
	cancel func()
	once   sync.Once
}

// Keys returns the channel of written keys. It is closed when the
// subscription is closed or its context is cancelled.
func (s *Subscription) Keys() <-chan string {
	return s.keys
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeDataEvents subscribes to key writes for this namespace.
// Delivery is at-most-once, like any Redis Pub/Sub subscription.
func (s *RedisStore) SubscribeDataEvents(ctx context.Context) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, boards.DataEventsChannel(s.namespace))

	// Wait for the subscription to be confirmed so no write is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to data events: %w", err)
	}

	keys := make(chan string, 10)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(keys)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case keys <- msg.Payload:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{keys: keys, cancel: cancel}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
