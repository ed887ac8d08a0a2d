package blocklist

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"edutalks/internal/calls"
	"edutalks/pkg/utils"

	"github.com/google/uuid"
)

func TestMemoryStore_FilterDropsBlocked(t *testing.T) {
	s := NewMemoryStore(0, nil)
	if err := s.Block(context.Background(), "u2"); err != nil {
		t.Fatalf("block: %v", err)
	}
	in := []calls.Candidate{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}
	got, err := s.Filter(context.Background(), in)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 2 || got[0].ID != "u1" || got[1].ID != "u3" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewMemoryStore(time.Hour, func() time.Time { return now })
	s.Block(context.Background(), "u1")

	blocked, _ := s.Blocked(context.Background(), []string{"u1"})
	if !blocked["u1"] {
		t.Fatalf("expected u1 blocked")
	}
	now = now.Add(2 * time.Hour)
	blocked, _ = s.Blocked(context.Background(), []string{"u1"})
	if blocked["u1"] {
		t.Fatalf("block should have expired")
	}
}

func TestMemoryStore_RejectsEmptyPeer(t *testing.T) {
	if err := NewMemoryStore(0, nil).Block(context.Background(), " "); !errors.Is(err, ErrEmptyPeer) {
		t.Fatalf("expected ErrEmptyPeer, got %v", err)
	}
}

// Runs against a real server when EDUTALKS_TEST_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
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

	s := NewRedisStore(rdb, "learner-"+uuid.NewString(), time.Minute)
	if err := s.Block(ctx, "u2"); err != nil {
		t.Fatalf("block: %v", err)
	}
	defer rdb.Del(ctx, s.key("u2"))

	got, err := s.Filter(ctx, []calls.Candidate{{ID: "u1"}, {ID: "u2"}})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u1" {
		t.Fatalf("unexpected result: %+v", got)
	}
}
