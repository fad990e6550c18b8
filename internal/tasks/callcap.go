package tasks

import (
	"context"
	"time"

	"callagent-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CallCap limits how many calls a workspace may have in flight at once. It
// is a policy hook: the executor defers tasks that cannot acquire a slot
// without consuming their attempt budget.
type CallCap interface {
	Acquire(ctx context.Context, workspaceID string) (bool, error)
	Release(ctx context.Context, workspaceID string) error
}

// RedisCallCap implements CallCap on the shared Redis concurrency counter,
// so the cap holds across multiple executor processes.
type RedisCallCap struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisCallCap(rdb *redis.Client, limit int, ttl time.Duration) *RedisCallCap {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCallCap{rdb: rdb, limit: limit, ttl: ttl}
}

func (c *RedisCallCap) key(workspaceID string) string {
	return "callcap:" + workspaceID
}

func (c *RedisCallCap) Acquire(ctx context.Context, workspaceID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, c.rdb, c.key(workspaceID), c.limit, c.ttl)
}

func (c *RedisCallCap) Release(ctx context.Context, workspaceID string) error {
	return utils.ReleaseConcurrencyCap(ctx, c.rdb, c.key(workspaceID))
}
