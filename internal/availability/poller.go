package availability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"edutalks/internal/calls"
	"edutalks/internal/clock"
)

const DefaultInterval = 10 * time.Second

// Fetcher lists the learners who can currently be called.
type Fetcher interface {
	ListAvailable(ctx context.Context, q calls.CandidateFilter) ([]calls.Candidate, error)
}

// Filter drops candidates the learner should not be matched with.
type Filter interface {
	Filter(ctx context.Context, in []calls.Candidate) ([]calls.Candidate, error)
}

type Options struct {
	Fetcher  Fetcher
	Filter   Filter
	Query    calls.CandidateFilter
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger

	// OnError is called after every failed fetch.
	OnError func(error)
}

// Status describes the outcome of the most recent fetch.
type Status struct {
	Running     bool      `json:"running"`
	Count       int       `json:"count"`
	LastFetchAt time.Time `json:"last_fetch_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Poller keeps the candidate list fresh by fetching it on a fixed interval.
// A failed fetch empties the list; the next tick tries again.
type Poller struct {
	fetcher  Fetcher
	filter   Filter
	query    calls.CandidateFilter
	interval time.Duration
	clock    clock.Clock
	log      *slog.Logger
	onError  func(error)

	mu          sync.RWMutex
	candidates  []calls.Candidate
	lastFetchAt time.Time
	lastErr     error

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(opts Options) *Poller {
	p := &Poller{
		fetcher:  opts.Fetcher,
		filter:   opts.Filter,
		query:    opts.Query,
		interval: opts.Interval,
		clock:    opts.Clock,
		log:      opts.Logger,
		onError:  opts.OnError,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// Start fetches immediately and then on every interval until ctx ends or Stop
// is called. Starting a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	ticker := p.clock.NewTicker(p.interval)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		p.fetch(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				p.fetch(ctx)
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
}

// RefreshNow fetches out of band. The polling schedule is not affected.
func (p *Poller) RefreshNow(ctx context.Context) ([]calls.Candidate, error) {
	if err := p.fetch(ctx); err != nil {
		return nil, err
	}
	return p.Candidates(), nil
}

// Candidates returns a copy of the latest list.
func (p *Poller) Candidates() []calls.Candidate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]calls.Candidate(nil), p.candidates...)
}

func (p *Poller) Status() Status {
	p.runMu.Lock()
	running := p.cancel != nil
	p.runMu.Unlock()

	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Status{Running: running, Count: len(p.candidates), LastFetchAt: p.lastFetchAt}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Poller) fetch(ctx context.Context) error {
	list, err := p.fetcher.ListAvailable(ctx, p.query)
	if err != nil && ctx.Err() != nil {
		// cancelled by Stop or the caller; keep the last list
		return err
	}
	if err == nil && p.filter != nil {
		filtered, ferr := p.filter.Filter(ctx, list)
		if ferr != nil {
			p.log.Warn("candidate filter failed", "err", ferr)
		} else {
			list = filtered
		}
	}

	p.mu.Lock()
	p.lastFetchAt = p.clock.Now().UTC()
	p.lastErr = err
	if err != nil {
		p.candidates = nil
	} else {
		p.candidates = list
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("fetch available users failed", "err", err)
		if p.onError != nil {
			p.onError(err)
		}
		return err
	}
	p.log.Debug("available users refreshed", "count", len(list))
	return nil
}
