package calls

import "time"

// Candidate is a learner who can currently receive a practice call.
//
// Candidates are advisory: the poller replaces the whole list on every fetch,
// so no per-candidate identity is tracked client-side.
type Candidate struct {
	ID                string     `json:"id"`
	DisplayName       string     `json:"display_name"`
	PreferredLanguage string     `json:"preferred_language,omitempty"`
	LastActiveAt      *time.Time `json:"last_active_at,omitempty"`
}

// CandidateFilter narrows the available-users listing.
type CandidateFilter struct {
	PreferredLanguage string
	Search            string
}

// Session is the single active (or most recently completed) call attempt.
//
// Invariants:
// - CallID is set only once the backend accepted the initiation.
// - DurationSeconds grows only while Status is in_progress; it is reset by the
//   next Start, not by End.
// - RingDeadline is nil whenever Status is not connecting/ringing.
type Session struct {
	// Generation increases with every Start and every return to idle.
	// Timer callbacks carry the generation they were armed for.
	Generation uint64 `json:"generation"`

	CallID            string `json:"call_id,omitempty"`
	CalleeID          string `json:"callee_id,omitempty"`
	CalleeDisplayName string `json:"callee_display_name,omitempty"`
	TopicID           string `json:"topic_id,omitempty"`

	Status Status `json:"status"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	RingDeadline    *time.Time `json:"ring_deadline,omitempty"`

	// RemainingSeconds is the talk-time allowance reported at initiation (0 = none).
	RemainingSeconds int `json:"remaining_seconds,omitempty"`

	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`

	// LastError is a human-readable message for the last failed initiation.
	LastError string `json:"last_error,omitempty"`
}

func (s Session) clone() Session {
	out := s
	out.StartedAt = copyTime(s.StartedAt)
	out.RingDeadline = copyTime(s.RingDeadline)
	out.EndedAt = copyTime(s.EndedAt)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RatingSubmission is the post-call rating. Stars must be within 1..5.
type RatingSubmission struct {
	CallID   string `json:"call_id"`
	Stars    int    `json:"stars"`
	Feedback string `json:"feedback,omitempty"`
}

const (
	MinStars = 1
	MaxStars = 5
)

// InitiateRequest asks the backend to ring a callee.
type InitiateRequest struct {
	CalleeID string `json:"calleeId"`
	TopicID  string `json:"topicId,omitempty"`
}

// InitiateResult is the backend's acceptance of an initiation.
// Status is the raw backend status; see NormalizeInitiateStatus.
type InitiateResult struct {
	CallID           string
	Status           string
	RemainingSeconds int
}

// End reasons recorded on the session and sent to the backend.
const (
	EndReasonHangup             = "hangup"
	EndReasonCancelled          = "cancelled"
	EndReasonNoAnswer           = "no_answer"
	EndReasonRemote             = "remote_ended"
	EndReasonAllowanceExhausted = "allowance_exhausted"
	EndReasonReset              = "reset"
	EndReasonSuperseded         = "superseded"
)
