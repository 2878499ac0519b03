package search

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/datacite/registry-search/pkg/config"
	pkgredis "github.com/datacite/registry-search/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "search:"

// QueryCache is a short-lived read-through cache for engine responses,
// backed by Redis with singleflight collapsing of concurrent misses.
// Scroll requests are stateful and bypass it.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache creates a QueryCache on top of the given Redis client.
func NewQueryCache(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// GetOrCompute returns the cached response for req or computes and stores
// it. The bool reports whether the response came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req *Request,
	computeFn func() (*Response, error),
) (*Response, bool, error) {
	if req.Page.Mode == PageScroll {
		resp, err := computeFn()
		return resp, false, err
	}

	key := c.buildKey(req)
	if resp, ok := c.get(ctx, key); ok {
		c.hits.Add(1)
		return resp, true, nil
	}
	c.misses.Add(1)

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.get(ctx, key); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Response), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) (*Response, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &resp, true
}

func (c *QueryCache) set(ctx context.Context, key string, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached response for one entity type. Called after
// index writes so readers never see responses older than the cache TTL plus
// the sync lag.
func (c *QueryCache) Invalidate(ctx context.Context, entityType string) error {
	pattern := cacheKeyPrefix + entityType + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", entityType, err)
	}
	c.logger.Info("cache invalidated", "entity_type", entityType, "keys_deleted", deleted)
	return nil
}

// Stats returns cumulative hit and miss counts.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey derives a stable key from every request component that affects
// the response.
func (c *QueryCache) buildKey(req *Request) string {
	parts := []string{
		req.Query,
		fmt.Sprintf("sort=%s:%t", req.Sort.Field, req.Sort.Desc),
		fmt.Sprintf("page=%d:%d:%d:%s", req.Page.Mode, req.Page.Number, req.Page.Size, strings.Join(req.Page.Cursor, ",")),
	}
	fields := make([]string, 0, len(req.Filters))
	for field := range req.Filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		values := append([]string(nil), req.Filters[field]...)
		sort.Strings(values)
		parts = append(parts, field+"="+strings.Join(values, ","))
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s%s:%x", cacheKeyPrefix, req.Type, hash[:16])
}
