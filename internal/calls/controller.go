package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"edutalks/internal/clock"
)

const (
	DefaultRingTimeout    = 30 * time.Second
	DefaultCleanupTimeout = 10 * time.Second
	tickInterval          = time.Second
)

// Options configures a Controller. Backend and Candidates are required.
type Options struct {
	Backend    Backend
	Candidates CandidateSource

	// Optional collaborators.
	Journal   Journal
	Guard     SessionGuard
	Blocklist Blocklist

	Clock  clock.Clock
	Rand   *rand.Rand
	Logger *slog.Logger

	RingTimeout time.Duration
	// CleanupTimeout bounds backend calls made from timer callbacks.
	CleanupTimeout time.Duration
}

// Controller owns the single call session of one learner.
//
// All transitions happen under mu. Network calls, lease release and journal
// writes run after mu is released, using the followUp collected during the
// transition.
type Controller struct {
	backend    Backend
	candidates CandidateSource
	journal    Journal
	guard      SessionGuard
	blocklist  Blocklist

	clock          clock.Clock
	log            *slog.Logger
	ringTimeout    time.Duration
	cleanupTimeout time.Duration

	mu        sync.Mutex
	rng       *rand.Rand
	s         Session
	ringTimer clock.Timer
	tickTimer clock.Timer
	guardHeld bool
}

func NewController(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("calls: backend is required")
	}
	if opts.Candidates == nil {
		return nil, errors.New("calls: candidate source is required")
	}
	c := &Controller{
		backend:        opts.Backend,
		candidates:     opts.Candidates,
		journal:        opts.Journal,
		guard:          opts.Guard,
		blocklist:      opts.Blocklist,
		clock:          opts.Clock,
		rng:            opts.Rand,
		log:            opts.Logger,
		ringTimeout:    opts.RingTimeout,
		cleanupTimeout: opts.CleanupTimeout,
		s:              Session{Status: StatusIdle},
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.ringTimeout <= 0 {
		c.ringTimeout = DefaultRingTimeout
	}
	if c.cleanupTimeout <= 0 {
		c.cleanupTimeout = DefaultCleanupTimeout
	}
	return c, nil
}

// followUp is the side-effect work produced by a transition.
type followUp struct {
	endCallID    string
	endReason    string
	releaseGuard bool
	events       []LifecycleEvent
}

func (c *Controller) run(ctx context.Context, f followUp) {
	if f.endCallID != "" {
		if err := c.backend.EndCall(ctx, f.endCallID, f.endReason); err != nil {
			c.log.Warn("end call failed", "call_id", f.endCallID, "reason", f.endReason, "err", err)
		}
	}
	if f.releaseGuard && c.guard != nil {
		if err := c.guard.Release(ctx); err != nil {
			c.log.Warn("release session lease failed", "err", err)
		}
	}
	for _, ev := range f.events {
		c.record(ctx, ev)
	}
}

// runDetached is used from timer callbacks, which have no caller context.
func (c *Controller) runDetached(f followUp) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cleanupTimeout)
	defer cancel()
	c.run(ctx, f)
}

func (c *Controller) record(ctx context.Context, ev LifecycleEvent) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(ctx, ev); err != nil {
		c.log.Warn("journal record failed", "kind", ev.Kind, "err", err)
	}
}

func (c *Controller) eventLocked(kind EventKind) LifecycleEvent {
	return LifecycleEvent{
		Kind:            kind,
		Generation:      c.s.Generation,
		CallID:          c.s.CallID,
		CalleeID:        c.s.CalleeID,
		Status:          c.s.Status,
		DurationSeconds: c.s.DurationSeconds,
		At:              c.clock.Now().UTC(),
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.clone()
}

// Start picks a random available candidate and asks the backend to ring them.
//
// The session shows connecting while the initiate request is in flight. If the
// session was reset or ended meanwhile, the late response is discarded and the
// orphaned backend call is ended.
func (c *Controller) Start(ctx context.Context, topicID string) (Session, error) {
	c.mu.Lock()
	if !c.s.Status.CanTransitionTo(StatusConnecting) {
		out := c.s.clone()
		c.mu.Unlock()
		return out, fmt.Errorf("%w: start while %s", ErrInvalidState, out.Status)
	}
	pool := c.candidates.Candidates()
	if len(pool) == 0 {
		out := c.s.clone()
		c.mu.Unlock()
		return out, ErrNoCandidates
	}
	callee := pool[c.rng.Intn(len(pool))]

	c.stopTimersLocked()
	gen := c.s.Generation + 1
	c.s = Session{
		Generation:        gen,
		CalleeID:          callee.ID,
		CalleeDisplayName: callee.DisplayName,
		TopicID:           topicID,
		Status:            StatusConnecting,
	}
	c.mu.Unlock()

	c.log.Info("starting call", "callee_id", callee.ID, "generation", gen)

	if c.guard != nil {
		ok, err := c.guard.Acquire(ctx)
		if err == nil && !ok {
			err = ErrSessionActiveElsewhere
		}
		if err != nil {
			return c.failInitiation(ctx, gen, err)
		}
		c.mu.Lock()
		if c.s.Generation != gen || c.s.Status != StatusConnecting {
			out := c.s.clone()
			c.mu.Unlock()
			if err := c.guard.Release(ctx); err != nil {
				c.log.Warn("release session lease failed", "err", err)
			}
			c.log.Info("start abandoned before initiation", "generation", gen)
			return out, fmt.Errorf("%w: session changed while starting", ErrInvalidState)
		}
		c.guardHeld = true
		c.mu.Unlock()
	}

	res, err := c.backend.InitiateCall(ctx, InitiateRequest{CalleeID: callee.ID, TopicID: topicID})
	if err == nil && res.CallID == "" {
		err = ErrMissingCallID
	}
	if err != nil {
		return c.failInitiation(ctx, gen, err)
	}
	return c.acceptInitiation(ctx, gen, res)
}

func (c *Controller) failInitiation(ctx context.Context, gen uint64, cause error) (Session, error) {
	var f followUp
	c.mu.Lock()
	if c.s.Generation == gen && c.s.Status == StatusConnecting {
		ev := c.eventLocked(EventInitiationFailed)
		ev.Error = cause.Error()
		f.events = append(f.events, ev)
		f.releaseGuard = c.guardHeld
		c.guardHeld = false
		c.s = Session{
			Generation: gen,
			Status:     StatusIdle,
			LastError:  cause.Error(),
		}
	}
	out := c.s.clone()
	c.mu.Unlock()

	c.log.Warn("call initiation failed", "generation", gen, "err", cause)
	c.run(ctx, f)
	return out, fmt.Errorf("%w: %w", ErrCallInitiationFailed, cause)
}

func (c *Controller) acceptInitiation(ctx context.Context, gen uint64, res InitiateResult) (Session, error) {
	var f followUp
	c.mu.Lock()
	if c.s.Generation != gen || c.s.Status != StatusConnecting {
		out := c.s.clone()
		c.mu.Unlock()
		c.log.Info("discarding superseded initiation", "call_id", res.CallID, "generation", gen)
		c.run(ctx, followUp{endCallID: res.CallID, endReason: EndReasonSuperseded})
		return out, fmt.Errorf("%w: session changed while initiating", ErrInvalidState)
	}

	c.s.CallID = res.CallID
	c.s.RemainingSeconds = res.RemainingSeconds
	f.events = append(f.events, c.eventLocked(EventInitiated))

	switch {
	case NormalizeInitiateStatus(res.Status) == StatusInProgress:
		c.enterInProgressLocked()
		f.events = append(f.events, c.eventLocked(EventConnected))
	default:
		c.s.Status = StatusRinging
		deadline := c.clock.Now().Add(c.ringTimeout)
		c.s.RingDeadline = &deadline
		c.ringTimer = c.clock.AfterFunc(c.ringTimeout, func() { c.onRingTimeout(gen) })
	}
	out := c.s.clone()
	c.mu.Unlock()

	c.log.Info("call initiated", "call_id", res.CallID, "status", out.Status, "generation", gen)
	c.run(ctx, f)
	return out, nil
}

func (c *Controller) onRingTimeout(gen uint64) {
	c.mu.Lock()
	if c.s.Generation != gen || !c.s.Status.ringing() {
		c.mu.Unlock()
		c.log.Debug("stale ring timeout ignored", "generation", gen)
		return
	}
	f := followUp{endCallID: c.s.CallID, endReason: EndReasonNoAnswer}
	c.ringTimer = nil
	now := c.clock.Now().UTC()
	c.s.Status = StatusTimedOut
	c.s.RingDeadline = nil
	c.s.EndedAt = &now
	c.s.EndReason = EndReasonNoAnswer
	f.events = append(f.events, c.eventLocked(EventTimedOut))
	c.s.CallID = ""
	f.releaseGuard = c.guardHeld
	c.guardHeld = false
	c.mu.Unlock()

	c.log.Info("call timed out", "call_id", f.endCallID, "generation", gen)
	c.runDetached(f)
}

// MarkConnected moves a ringing session to in_progress.
// An empty callID refers to the current session; any other mismatch is a
// stale signal and is ignored. Until the backend has assigned a call id there
// is nothing to connect, so the signal is ignored too.
func (c *Controller) MarkConnected(callID string) bool {
	c.mu.Lock()
	if callID != "" && callID != c.s.CallID {
		c.mu.Unlock()
		c.log.Debug("connected signal for another call ignored", "call_id", callID)
		return false
	}
	if c.s.CallID == "" {
		st := c.s.Status
		c.mu.Unlock()
		c.log.Debug("connected signal before call id ignored", "status", st)
		return false
	}
	switch {
	case c.s.Status == StatusInProgress:
		c.mu.Unlock()
		return true
	case !c.s.Status.ringing():
		st := c.s.Status
		c.mu.Unlock()
		c.log.Debug("connected signal ignored", "status", st)
		return false
	}
	c.enterInProgressLocked()
	ev := c.eventLocked(EventConnected)
	c.mu.Unlock()

	c.runDetached(followUp{events: []LifecycleEvent{ev}})
	return true
}

// enterInProgressLocked is the only place the duration tick is started.
func (c *Controller) enterInProgressLocked() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	now := c.clock.Now().UTC()
	c.s.Status = StatusInProgress
	c.s.RingDeadline = nil
	c.s.StartedAt = &now
	c.s.DurationSeconds = 0
	if c.tickTimer == nil {
		gen := c.s.Generation
		c.tickTimer = c.clock.AfterFunc(tickInterval, func() { c.tick(gen) })
	}
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if c.s.Generation != gen || c.s.Status != StatusInProgress {
		c.mu.Unlock()
		return
	}
	c.s.DurationSeconds++
	if c.s.RemainingSeconds > 0 && c.s.DurationSeconds >= c.s.RemainingSeconds {
		c.tickTimer = nil
		f := c.endLocked(EndReasonAllowanceExhausted, true)
		c.mu.Unlock()
		c.log.Info("talk-time allowance exhausted", "call_id", f.endCallID)
		c.runDetached(f)
		return
	}
	c.tickTimer = c.clock.AfterFunc(tickInterval, func() { c.tick(gen) })
	c.mu.Unlock()
}

func (c *Controller) stopTimersLocked() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
}

// endLocked moves an active session to ended. CallID is kept for rating.
func (c *Controller) endLocked(reason string, notifyBackend bool) followUp {
	c.stopTimersLocked()
	now := c.clock.Now().UTC()
	c.s.Status = StatusEnded
	c.s.RingDeadline = nil
	c.s.EndedAt = &now
	c.s.EndReason = reason

	f := followUp{endReason: reason}
	if notifyBackend {
		f.endCallID = c.s.CallID
	}
	f.releaseGuard = c.guardHeld
	c.guardHeld = false
	ev := c.eventLocked(EventEnded)
	ev.Reason = reason
	f.events = append(f.events, ev)
	return f
}

// End hangs up or cancels the active call. It is a no-op unless the session is
// connecting, ringing or in progress.
func (c *Controller) End(ctx context.Context, reason string) Session {
	if reason == "" {
		reason = EndReasonHangup
	}
	c.mu.Lock()
	if !c.s.Status.IsActive() {
		out := c.s.clone()
		c.mu.Unlock()
		return out
	}
	f := c.endLocked(reason, true)
	out := c.s.clone()
	c.mu.Unlock()

	c.log.Info("call ended", "call_id", out.CallID, "reason", reason, "duration_seconds", out.DurationSeconds)
	c.run(ctx, f)
	return out
}

// resetLocked returns the session to idle and bumps the generation so any
// in-flight callback becomes stale.
func (c *Controller) resetLocked() followUp {
	c.stopTimersLocked()
	var f followUp
	f.releaseGuard = c.guardHeld
	c.guardHeld = false
	c.s = Session{Generation: c.s.Generation + 1, Status: StatusIdle}
	return f
}

// SubmitRating rates the ended call and resets the session.
//
// The session returns to idle before the backend is contacted; a backend
// failure is reported with ErrRatingFailed but does not restore the session.
func (c *Controller) SubmitRating(ctx context.Context, stars int, feedback string) error {
	if stars < MinStars || stars > MaxStars {
		return ErrInvalidRating
	}
	c.mu.Lock()
	if c.s.Status != StatusEnded || c.s.CallID == "" {
		st := c.s.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: rating while %s", ErrInvalidState, st)
	}
	sub := RatingSubmission{CallID: c.s.CallID, Stars: stars, Feedback: feedback}
	ev := c.eventLocked(EventRated)
	ev.Stars = stars
	f := c.resetLocked()
	c.mu.Unlock()

	c.run(ctx, f)
	if err := c.backend.RateCall(ctx, sub); err != nil {
		ev.Kind = EventRatingFailed
		ev.Error = err.Error()
		c.record(ctx, ev)
		c.log.Warn("rating submission failed", "call_id", sub.CallID, "err", err)
		return fmt.Errorf("%w: %w", ErrRatingFailed, err)
	}
	c.record(ctx, ev)
	return nil
}

// BlockAndReset records the last callee as blocked and returns to idle.
// Only allowed after the call ended or timed out.
func (c *Controller) BlockAndReset(ctx context.Context) error {
	c.mu.Lock()
	if !c.s.Status.IsTerminal() {
		st := c.s.Status
		c.mu.Unlock()
		return fmt.Errorf("%w: block while %s", ErrInvalidState, st)
	}
	peer := c.s.CalleeID
	ev := c.eventLocked(EventBlocked)
	f := c.resetLocked()
	c.mu.Unlock()

	c.run(ctx, f)
	if c.blocklist != nil && peer != "" {
		if err := c.blocklist.Block(ctx, peer); err != nil {
			c.log.Warn("block peer failed", "peer_id", peer, "err", err)
		}
	}
	c.record(ctx, ev)
	return nil
}

// Reset abandons whatever the session is doing and returns to idle.
// An active backend call is ended best-effort.
func (c *Controller) Reset(ctx context.Context) Session {
	c.mu.Lock()
	var endCallID string
	if c.s.Status.IsActive() {
		endCallID = c.s.CallID
	}
	var ev *LifecycleEvent
	if c.s.Status != StatusIdle {
		e := c.eventLocked(EventReset)
		ev = &e
	}
	f := c.resetLocked()
	f.endCallID = endCallID
	f.endReason = EndReasonReset
	if ev != nil {
		f.events = append(f.events, *ev)
	}
	out := c.s.clone()
	c.mu.Unlock()

	c.run(ctx, f)
	return out
}

// ObserveStatus applies a call status reported by the backend, either pushed
// over the signaling channel or polled. Statuses for other calls are ignored.
func (c *Controller) ObserveStatus(ctx context.Context, callID, status string) {
	switch {
	case isConnectedStatus(status):
		c.MarkConnected(callID)
	case isFinishedStatus(status):
		c.mu.Lock()
		if callID == "" || callID != c.s.CallID || !c.s.Status.IsActive() {
			c.mu.Unlock()
			return
		}
		f := c.endLocked(EndReasonRemote, false)
		c.mu.Unlock()
		c.log.Info("call ended by remote", "call_id", callID, "status", status)
		c.run(ctx, f)
	default:
		c.log.Debug("call status ignored", "call_id", callID, "status", status)
	}
}
