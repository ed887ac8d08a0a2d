package calls

import (
	"context"
	"time"
)

// Backend is the slice of the EduTalks call service the controller needs.
type Backend interface {
	InitiateCall(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	EndCall(ctx context.Context, callID, reason string) error
	RateCall(ctx context.Context, sub RatingSubmission) error
}

// CandidateSource exposes the most recent availability snapshot.
type CandidateSource interface {
	Candidates() []Candidate
}

// Journal records lifecycle events. Failures never affect the session.
type Journal interface {
	Record(ctx context.Context, ev LifecycleEvent) error
}

// SessionGuard enforces a single active call across processes.
// Acquire returns false when another holder owns the slot.
type SessionGuard interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Blocklist records peers the learner does not want to be matched with again.
type Blocklist interface {
	Block(ctx context.Context, peerID string) error
}

// EventKind names a lifecycle event.
type EventKind string

const (
	EventInitiated        EventKind = "initiated"
	EventInitiationFailed EventKind = "initiation_failed"
	EventConnected        EventKind = "connected"
	EventTimedOut         EventKind = "timed_out"
	EventEnded            EventKind = "ended"
	EventRated            EventKind = "rated"
	EventRatingFailed     EventKind = "rating_failed"
	EventBlocked          EventKind = "blocked"
	EventReset            EventKind = "reset"
)

// LifecycleEvent is what the controller hands to the Journal.
type LifecycleEvent struct {
	Kind            EventKind
	Generation      uint64
	CallID          string
	CalleeID        string
	Status          Status
	DurationSeconds int
	Stars           int
	Reason          string
	Error           string
	At              time.Time
}
