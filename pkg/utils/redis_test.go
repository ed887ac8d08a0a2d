package utils

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.PoolSize != 4 || c.PingTimeout != 2*time.Second || c.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestConcurrencyCapRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected nil client error")
	}
	if err := ReleaseConcurrencyCap(ctx, nil, "k"); err == nil {
		t.Fatalf("expected nil client error")
	}
}

// Runs against a real server when EDUTALKS_TEST_REDIS_ADDR is set.
func TestConcurrencyCap_Redis(t *testing.T) {
	addr := os.Getenv("EDUTALKS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EDUTALKS_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := OpenRedis(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer rdb.Close()

	key := "edutalks:test:cap:" + uuid.NewString()
	defer rdb.Del(ctx, key)

	ok, err := AcquireConcurrencyCap(ctx, rdb, key, 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, key, 1, time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should be refused: %v %v", ok, err)
	}
	if err := ReleaseConcurrencyCap(ctx, rdb, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ReleaseConcurrencyCap(ctx, rdb, key); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if n, _ := rdb.Exists(ctx, key).Result(); n != 0 {
		t.Fatalf("key should be gone after release")
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, key, 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: %v %v", ok, err)
	}
}
