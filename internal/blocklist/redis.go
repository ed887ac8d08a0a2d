package blocklist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edutalks/internal/calls"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one key per blocked peer so blocks survive restarts and
// expire on their own.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore namespaces keys by learner so several agents can share a server.
func NewRedisStore(rdb *redis.Client, learnerID string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: fmt.Sprintf("edutalks:blocklist:%s:", learnerID),
		ttl:    ttl,
	}
}

func (s *RedisStore) key(peerID string) string { return s.prefix + peerID }

func (s *RedisStore) Block(ctx context.Context, peerID string) error {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return ErrEmptyPeer
	}
	if err := s.rdb.Set(ctx, s.key(peerID), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("blocklist: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Blocked(ctx context.Context, peerIDs []string) (map[string]bool, error) {
	out := map[string]bool{}
	if len(peerIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(peerIDs))
	for i, id := range peerIDs {
		keys[i] = s.key(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("blocklist: mget: %w", err)
	}
	for i, v := range vals {
		if v != nil {
			out[peerIDs[i]] = true
		}
	}
	return out, nil
}

func (s *RedisStore) Filter(ctx context.Context, in []calls.Candidate) ([]calls.Candidate, error) {
	return filter(ctx, s, in)
}
