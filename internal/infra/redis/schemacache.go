package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const schemaKeyPrefix = "guard:schema"

// SchemaCache caches table schema lookups (columns, indexes) for the
// database scanner. The scanner tolerates every miss or error here
// transparently by recomputing from the database.
type SchemaCache struct {
	client *Client
	ttl    time.Duration
}

// NewSchemaCache creates a schema cache.
func NewSchemaCache(client *Client, ttl time.Duration) *SchemaCache {
	return &SchemaCache{client: client, ttl: ttl}
}

func schemaKey(table, kind string) string {
	return fmt.Sprintf("%s:%s:%s", schemaKeyPrefix, table, kind)
}

// Get returns the cached name list for (table, kind), or ErrCacheMiss.
func (c *SchemaCache) Get(ctx context.Context, table, kind string) ([]string, error) {
	data, err := c.client.get(ctx, schemaKey(table, kind))
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("unmarshal schema cache entry: %w", err)
	}
	return names, nil
}

// Set stores the name list for (table, kind).
func (c *SchemaCache) Set(ctx context.Context, table, kind string, names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("marshal schema cache entry: %w", err)
	}
	return c.client.set(ctx, schemaKey(table, kind), data, c.ttl)
}

// Invalidate drops the cached entry for (table, kind).
func (c *SchemaCache) Invalidate(ctx context.Context, table, kind string) error {
	return c.client.del(ctx, schemaKey(table, kind))
}
