// Package redis implements best-effort caches and coordination primitives on
// top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const viewerCountTTL = 5 * time.Minute

// ViewerCache caches provider-reported participant counts per session. The
// TTL bounds staleness when the provider stops reporting.
type ViewerCache struct {
	rdb *goredis.Client
}

func NewViewerCache(rdb *goredis.Client) *ViewerCache {
	return &ViewerCache{rdb: rdb}
}

func viewerKey(sessionID uuid.UUID) string {
	return "viewers:" + sessionID.String()
}

func (c *ViewerCache) Set(ctx context.Context, sessionID uuid.UUID, count int) error {
	if err := c.rdb.Set(ctx, viewerKey(sessionID), count, viewerCountTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache viewer count: %w", err)
	}
	return nil
}

func (c *ViewerCache) Get(ctx context.Context, sessionID uuid.UUID) (int, bool, error) {
	val, err := c.rdb.Get(ctx, viewerKey(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read viewer count: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt viewer count %q: %w", val, err)
	}
	return count, true, nil
}

func (c *ViewerCache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := c.rdb.Del(ctx, viewerKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete viewer count: %w", err)
	}
	return nil
}
