package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// LeaderElector implements leader election via SETNX with TTL so only one
// instance runs the orphan sweeper at a time.
type LeaderElector struct {
	rdb        *goredis.Client
	instanceID string
	lockKey    string
	lockTTL    time.Duration
}

// NewLeaderElector creates a leader election coordinator.
// instanceID should be unique per instance (e.g. hostname-PID).
func NewLeaderElector(rdb *goredis.Client, instanceID string) *LeaderElector {
	return &LeaderElector{
		rdb:        rdb,
		instanceID: instanceID,
		lockKey:    "sweeper:leader",
		lockTTL:    30 * time.Second,
	}
}

// TryAcquire attempts to become the leader for one sweep window.
func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.lockKey, l.instanceID, l.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lock: %w", err)
	}
	return ok, nil
}

// Release gives up leadership. The compare-and-delete script avoids deleting
// a lock another instance has since acquired.
func (l *LeaderElector) Release(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

	if _, err := l.rdb.Eval(ctx, script, []string{l.lockKey}, l.instanceID).Result(); err != nil {
		return fmt.Errorf("failed to release leader lock: %w", err)
	}
	return nil
}
