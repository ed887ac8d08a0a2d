package blocklist

import (
	"context"
	"errors"

	"edutalks/internal/calls"
)

// ErrEmptyPeer: Block was called without a peer id.
var ErrEmptyPeer = errors.New("blocklist: peer id is required")

// Store records peers the learner asked not to be matched with again.
// Blocking is advisory; the backend does not know about it.
type Store interface {
	Block(ctx context.Context, peerID string) error
	Blocked(ctx context.Context, peerIDs []string) (map[string]bool, error)
}

// filter drops blocked candidates, keeping order.
func filter(ctx context.Context, s Store, in []calls.Candidate) ([]calls.Candidate, error) {
	if len(in) == 0 {
		return in, nil
	}
	ids := make([]string, len(in))
	for i, c := range in {
		ids[i] = c.ID
	}
	blocked, err := s.Blocked(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(blocked) == 0 {
		return in, nil
	}
	out := make([]calls.Candidate, 0, len(in))
	for _, c := range in {
		if !blocked[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}
