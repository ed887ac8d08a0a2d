package calls

import "strings"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in_progress"
	StatusTimedOut   Status = "timed_out"
	StatusEnded      Status = "ended"
)

// validTransitions lists the transitions the controller may take.
// Reset is the only path that bypasses this table.
var validTransitions = map[Status][]Status{
	StatusIdle:       {StatusConnecting},
	StatusConnecting: {StatusRinging, StatusInProgress, StatusTimedOut, StatusEnded, StatusIdle},
	StatusRinging:    {StatusInProgress, StatusTimedOut, StatusEnded},
	StatusInProgress: {StatusEnded},
	StatusTimedOut:   {StatusIdle, StatusConnecting},
	StatusEnded:      {StatusIdle, StatusConnecting},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range validTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// IsActive reports whether a call attempt is underway.
func (s Status) IsActive() bool {
	switch s {
	case StatusConnecting, StatusRinging, StatusInProgress:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the session is waiting for the post-call flow.
func (s Status) IsTerminal() bool {
	return s == StatusTimedOut || s == StatusEnded
}

func (s Status) ringing() bool {
	return s == StatusConnecting || s == StatusRinging
}

// NormalizeInitiateStatus maps the backend's initiate status onto a Status.
// Anything other than an immediate connection is treated as ringing.
func NormalizeInitiateStatus(raw string) Status {
	if isConnectedStatus(raw) {
		return StatusInProgress
	}
	return StatusRinging
}

func normalizeRaw(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	r = strings.ReplaceAll(r, "_", "")
	return strings.ReplaceAll(r, "-", "")
}

func isConnectedStatus(raw string) bool {
	switch normalizeRaw(raw) {
	case "inprogress", "accepted", "connected", "active":
		return true
	default:
		return false
	}
}

func isFinishedStatus(raw string) bool {
	switch normalizeRaw(raw) {
	case "ended", "completed", "rejected", "declined", "missed", "cancelled", "canceled", "failed", "busy":
		return true
	default:
		return false
	}
}
