package lease

import (
	"context"
	"fmt"
	"time"

	"edutalks/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed agent can block new calls.
const DefaultTTL = 2 * time.Hour

// RedisGuard allows one active call per learner across agent processes.
// It implements calls.SessionGuard.
type RedisGuard struct {
	rdb redis.Scripter
	key string
	ttl time.Duration
}

func NewRedisGuard(rdb redis.Scripter, learnerID string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{rdb: rdb, key: Key(learnerID), ttl: ttl}
}

// Key is the redis key holding the learner's active-call slot.
func Key(learnerID string) string {
	return fmt.Sprintf("edutalks:active_call:%s", learnerID)
}

func (g *RedisGuard) Acquire(ctx context.Context) (bool, error) {
	ok, err := utils.AcquireConcurrencyCap(ctx, g.rdb, g.key, 1, g.ttl)
	if err != nil {
		return false, fmt.Errorf("lease: acquire: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context) error {
	if err := utils.ReleaseConcurrencyCap(ctx, g.rdb, g.key); err != nil {
		return fmt.Errorf("lease: release: %w", err)
	}
	return nil
}
