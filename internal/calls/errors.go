package calls

import "errors"

var (
	// ErrNoCandidates: Start with an empty candidate pool. No state change.
	ErrNoCandidates = errors.New("calls: no candidates available")
	// ErrInvalidState: the operation is not allowed in the current status.
	ErrInvalidState = errors.New("calls: invalid state for operation")
	// ErrCallInitiationFailed: the backend rejected the call or was unreachable.
	// The session is back to idle.
	ErrCallInitiationFailed = errors.New("calls: call initiation failed")
	// ErrInvalidRating: stars outside 1..5. Checked before any network call.
	ErrInvalidRating = errors.New("calls: rating must be between 1 and 5")
	// ErrRatingFailed: the backend did not accept the rating. The session was
	// reset regardless.
	ErrRatingFailed = errors.New("calls: rating submission failed")
	// ErrSessionActiveElsewhere: another agent for the same learner holds the
	// active-call lease.
	ErrSessionActiveElsewhere = errors.New("calls: a call is already active for this learner")
	// ErrMissingCallID: the backend accepted the initiation without a call id.
	ErrMissingCallID = errors.New("calls: no callId returned from server")
)
