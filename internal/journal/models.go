package journal

import (
	"time"

	"edutalks/internal/calls"
)

// Event is an immutable, append-only record of one session transition.
//
// Invariants:
// - Events are never updated or deleted.
// - Writes are best-effort; the call flow never waits on a failed append.
type Event struct {
	ID         string          `json:"id" db:"id"`
	Kind       calls.EventKind `json:"kind" db:"kind"`
	Generation uint64          `json:"generation" db:"generation"`

	CallID   string       `json:"call_id,omitempty" db:"call_id"`
	CalleeID string       `json:"callee_id,omitempty" db:"callee_id"`
	Status   calls.Status `json:"status" db:"status"`

	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	Stars           int    `json:"stars,omitempty" db:"stars"`
	Reason          string `json:"reason,omitempty" db:"reason"`
	Error           string `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Query filters List. Zero values mean no filter; To is exclusive.
type Query struct {
	From   time.Time
	To     time.Time
	CallID string
	Kinds  []calls.EventKind
	Limit  int
}

func (q Query) matches(e Event) bool {
	if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.CreatedAt.Before(q.To) {
		return false
	}
	if q.CallID != "" && e.CallID != q.CallID {
		return false
	}
	if len(q.Kinds) > 0 {
		for _, k := range q.Kinds {
			if k == e.Kind {
				return true
			}
		}
		return false
	}
	return true
}
