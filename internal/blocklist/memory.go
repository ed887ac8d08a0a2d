package blocklist

import (
	"context"
	"strings"
	"sync"
	"time"

	"edutalks/internal/calls"
)

// MemoryStore keeps blocks for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	until map[string]time.Time
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore returns a store whose blocks expire after ttl; zero never expires.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{until: map[string]time.Time{}, ttl: ttl, now: now}
}

func (s *MemoryStore) Block(ctx context.Context, peerID string) error {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return ErrEmptyPeer
	}
	var until time.Time
	if s.ttl > 0 {
		until = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.until[peerID] = until
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Blocked(ctx context.Context, peerIDs []string) (map[string]bool, error) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]bool{}
	for _, id := range peerIDs {
		until, ok := s.until[id]
		if ok && (until.IsZero() || now.Before(until)) {
			out[id] = true
		}
	}
	return out, nil
}

func (s *MemoryStore) Filter(ctx context.Context, in []calls.Candidate) ([]calls.Candidate, error) {
	return filter(ctx, s, in)
}
