// Package persistence provides the key-value service that boardctl persists
// board configuration, selection and history through.
//
// Each Get and Set is independently atomic. No multi-key transactions are
// offered, so callers read before they write within one logical operation.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("persistence store is closed")

// Service is a get/set key-value store with JSON-encoded values.
type Service interface {
	// Get decodes the value stored at key into v.
	// Returns false (and no error) if the key does not exist.
	Get(ctx context.Context, key string, v any) (bool, error)

	// Set encodes v and stores it at key, replacing any previous value.
	Set(ctx context.Context, key string, v any) error
}

func encode(key string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value for %q: %w", key, err)
	}
	return data, nil
}

func decode(key string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value for %q: %w", key, err)
	}
	return nil
}

var (
	_ Service = (*RedisStore)(nil)
	_ Service = (*SQLiteStore)(nil)
)
