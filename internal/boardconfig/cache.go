package boardconfig

import (
	"context"
	"fmt"

	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/dyluth/boardctl/pkg/boards"
)

// ConfigCache maps (fqbn, platform version) to a persisted BoardConfigRecord.
type ConfigCache struct {
	store     persistence.Service
	namespace string
}

// NewConfigCache creates a cache writing through store under namespace.
func NewConfigCache(store persistence.Service, namespace string) *ConfigCache {
	return &ConfigCache{store: store, namespace: namespace}
}

// Get returns the cached record. Returns (zero, false, nil) on a miss.
func (c *ConfigCache) Get(ctx context.Context, fqbn, version string) (boards.BoardConfigRecord, bool, error) {
	var record boards.BoardConfigRecord
	found, err := c.store.Get(ctx, boards.ConfigOptionsKey(c.namespace, version, fqbn), &record)
	if err != nil {
		return boards.BoardConfigRecord{}, false, fmt.Errorf("failed to read cached config for %s@%s: %w", fqbn, version, err)
	}
	return record, found, nil
}

// Put persists record for (fqbn, version).
func (c *ConfigCache) Put(ctx context.Context, fqbn, version string, record boards.BoardConfigRecord) error {
	if err := c.store.Set(ctx, boards.ConfigOptionsKey(c.namespace, version, fqbn), record); err != nil {
		return fmt.Errorf("failed to cache config for %s@%s: %w", fqbn, version, err)
	}
	return nil
}
