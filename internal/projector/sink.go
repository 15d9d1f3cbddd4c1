package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/pkg/boards"
	"github.com/redis/go-redis/v9"
)

// StateSink receives projected state, one keyed field at a time.
type StateSink interface {
	Set(ctx context.Context, field string, value any) error
}

// StateReader reads back every projected field as raw JSON.
type StateReader interface {
	State(ctx context.Context) (map[string]json.RawMessage, error)
}

// RedisSink stores the projected state as a hash at boardctl:<ns>:state and
// publishes the changed field name on boardctl:<ns>:state_events.
type RedisSink struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisSink creates a sink writing through rdb.
func NewRedisSink(rdb *redis.Client, namespace string) (*RedisSink, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &RedisSink{rdb: rdb, namespace: namespace}, nil
}

// Set stores value as JSON under field. A nil value deletes the field.
func (s *RedisSink) Set(ctx context.Context, field string, value any) error {
	key := boards.StateKey(s.namespace)

	pipe := s.rdb.TxPipeline()
	if value == nil {
		pipe.HDel(ctx, key, field)
	} else {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal state field %q: %w", field, err)
		}
		pipe.HSet(ctx, key, field, data)
	}
	pipe.Publish(ctx, boards.StateEventsChannel(s.namespace), field)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write state field %q: %w", field, err)
	}
	return nil
}

// State returns every projected field as raw JSON.
func (s *RedisSink) State(ctx context.Context) (map[string]json.RawMessage, error) {
	raw, err := s.rdb.HGetAll(ctx, boards.StateKey(s.namespace)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	state := make(map[string]json.RawMessage, len(raw))
	for field, value := range raw {
		state[field] = json.RawMessage(value)
	}
	return state, nil
}

// StoreSink keeps the projected state as one JSON object under the state key
// of a persistence service. It serves backends without pub/sub. Writes are
// read-modify-write, so a StoreSink must be the state key's only writer.
type StoreSink struct {
	store     persistence.Service
	namespace string
}

// NewStoreSink creates a sink writing through store.
func NewStoreSink(store persistence.Service, namespace string) (*StoreSink, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &StoreSink{store: store, namespace: namespace}, nil
}

// Set stores value under field. A nil value deletes the field.
func (s *StoreSink) Set(ctx context.Context, field string, value any) error {
	state, err := s.State(ctx)
	if err != nil {
		return err
	}
	if value == nil {
		delete(state, field)
	} else {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal state field %q: %w", field, err)
		}
		state[field] = data
	}
	if err := s.store.Set(ctx, boards.StateKey(s.namespace), state); err != nil {
		return fmt.Errorf("failed to write state field %q: %w", field, err)
	}
	return nil
}

// State returns every projected field as raw JSON.
func (s *StoreSink) State(ctx context.Context) (map[string]json.RawMessage, error) {
	state := map[string]json.RawMessage{}
	if _, err := s.store.Get(ctx, boards.StateKey(s.namespace), &state); err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if state == nil {
		state = map[string]json.RawMessage{}
	}
	return state, nil
}

var (
	_ StateReader = (*RedisSink)(nil)
	_ StateReader = (*StoreSink)(nil)
)
