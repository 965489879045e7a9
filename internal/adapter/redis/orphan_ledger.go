package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const orphanLedgerKey = "orphan_rooms"

// OrphanLedger records room names that leaked at the provider, scored by the
// time they were recorded so an operator can see how long a room has been
// outstanding.
type OrphanLedger struct {
	rdb *goredis.Client
}

func NewOrphanLedger(rdb *goredis.Client) *OrphanLedger {
	return &OrphanLedger{rdb: rdb}
}

func (l *OrphanLedger) Record(ctx context.Context, roomName string) error {
	member := goredis.Z{Score: float64(time.Now().Unix()), Member: roomName}
	if err := l.rdb.ZAdd(ctx, orphanLedgerKey, member).Err(); err != nil {
		return fmt.Errorf("failed to record orphan room: %w", err)
	}
	return nil
}

func (l *OrphanLedger) List(ctx context.Context) ([]string, error) {
	rooms, err := l.rdb.ZRange(ctx, orphanLedgerKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan rooms: %w", err)
	}
	return rooms, nil
}

func (l *OrphanLedger) Remove(ctx context.Context, roomName string) error {
	if err := l.rdb.ZRem(ctx, orphanLedgerKey, roomName).Err(); err != nil {
		return fmt.Errorf("failed to remove orphan room: %w", err)
	}
	return nil
}
