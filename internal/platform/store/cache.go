package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const cacheKeyPrefix = "visitdesk:doc:"

type cached struct {
	next        Repository
	client      *redis.Client
	ttl         time.Duration
	collections map[string]bool
	logger      zerolog.Logger
}

// WithCache puts a redis read-through cache in front of Get for the named
// collections. Writes and deletes through the returned Repository evict the
// key. Redis errors are logged and the call goes straight to next.
func WithCache(next Repository, client *redis.Client, ttl time.Duration, logger zerolog.Logger, collections ...string) Repository {
	set := make(map[string]bool, len(collections))
	for _, c := range collections {
		set[c] = true
	}
	return &cached{next: next, client: client, ttl: ttl, collections: set, logger: logger}
}

func cacheKey(collection, id string) string {
	return cacheKeyPrefix + collection + ":" + id
}

func (c *cached) Get(ctx context.Context, collection, id string) (*Document, error) {
	if !c.collections[collection] {
		return c.next.Get(ctx, collection, id)
	}
	key := cacheKey(collection, id)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var doc Document
		if jerr := json.Unmarshal(raw, &doc); jerr == nil {
			return &doc, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	doc, err := c.next.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(doc); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return doc, nil
}

func (c *cached) Query(ctx context.Context, q Query) ([]*Document, error) {
	return c.next.Query(ctx, q)
}

func (c *cached) Upsert(ctx context.Context, collection, id string, fields Fields, merge bool) (*Document, error) {
	doc, err := c.next.Upsert(ctx, collection, id, fields, merge)
	if doc != nil {
		id = doc.ID
	}
	c.evict(ctx, collection, id)
	return doc, err
}

func (c *cached) Delete(ctx context.Context, collection, id string) error {
	err := c.next.Delete(ctx, collection, id)
	c.evict(ctx, collection, id)
	return err
}

func (c *cached) evict(ctx context.Context, collection, id string) {
	if !c.collections[collection] || id == "" {
		return
	}
	if err := c.client.Del(ctx, cacheKey(collection, id)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("cache evict failed")
	}
}
