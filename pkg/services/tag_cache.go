package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// DefaultTagCacheTTL bounds staleness if an invalidation is ever missed.
const DefaultTagCacheTTL = 5 * time.Minute

// TagCache caches the active, condition-bearing tag definitions per tenant
// in Redis. The engine reads these on every client write, while tags change
// rarely, so the hot path is almost always a cache hit.
//
// A nil Redis client disables the cache: every read misses and writes are
// no-ops. Cache failures degrade to repository reads, never to errors.
type TagCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewTagCache creates a cache over the given Redis client, which may be nil.
func NewTagCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *TagCache {
	if ttl <= 0 {
		ttl = DefaultTagCacheTTL
	}
	return &TagCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("tag_cache"),
	}
}

func tagCacheKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("tags:active:%s", tenantID)
}

// GetActive returns the cached active tag definitions for the tenant.
// The second return value is false on a miss or any cache failure.
func (c *TagCache) GetActive(ctx context.Context, tenantID uuid.UUID) ([]*models.TagDefinition, bool) {
	if c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, tagCacheKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("tag cache read failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
		}
		return nil, false
	}

	var tags []*models.TagDefinition
	if err := json.Unmarshal(data, &tags); err != nil {
		c.logger.Warn("tag cache entry corrupt, dropping",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		c.Invalidate(ctx, tenantID)
		return nil, false
	}
	return tags, true
}

// SetActive stores the tenant's active tag definitions.
func (c *TagCache) SetActive(ctx context.Context, tenantID uuid.UUID, tags []*models.TagDefinition) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(tags)
	if err != nil {
		c.logger.Warn("failed to marshal tags for cache",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, tagCacheKey(tenantID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("tag cache write failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
	}
}

// Invalidate drops the tenant's cache entry. Called on every tag mutation.
func (c *TagCache) Invalidate(ctx context.Context, tenantID uuid.UUID) {
	if c.client == nil {
		return
	}

	if err := c.client.Del(ctx, tagCacheKey(tenantID)).Err(); err != nil {
		c.logger.Warn("tag cache invalidation failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
	}
}
