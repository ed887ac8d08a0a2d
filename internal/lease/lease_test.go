package lease

import (
	"context"
	"os"
	"testing"

	"edutalks/pkg/utils"

	"github.com/google/uuid"
)

func TestKey(t *testing.T) {
	if got := Key("learner-1"); got != "edutalks:active_call:learner-1" {
		t.Fatalf("unexpected key %q", got)
	}
	if g := NewRedisGuard(nil, "x", 0); g.ttl != DefaultTTL {
		t.Fatalf("expected default ttl, got %v", g.ttl)
	}
}

// Runs against a real server when EDUTALKS_TEST_REDIS_ADDR is set.
func TestRedisGuard_OneHolder(t *testing.T) {
	addr := os.Getenv("EDUTALKS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EDUTALKS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer rdb.Close()

	learner := uuid.NewString()
	a := NewRedisGuard(rdb, learner, 0)
	b := NewRedisGuard(rdb, learner, 0)
	defer rdb.Del(ctx, Key(learner))

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("a acquire: %v %v", ok, err)
	}
	if ok, err := b.Acquire(ctx); err != nil || ok {
		t.Fatalf("b must be refused: %v %v", ok, err)
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := b.Acquire(ctx); err != nil || !ok {
		t.Fatalf("b acquire after release: %v %v", ok, err)
	}
}
