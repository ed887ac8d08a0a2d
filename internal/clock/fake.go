package clock

import (
	"sync"
	"time"
)

// Fake is a controllable clock for tests.
//
// Timers and tickers only fire from Advance. AfterFunc callbacks run
// synchronously on the goroutine calling Advance, in deadline order, so tests
// can assert on state right after advancing.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

// NewFake returns a fake clock set to start. A zero start uses a fixed
// reference instant.
func NewFake(start time.Time) *Fake {
	if start.IsZero() {
		start = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	}
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, at: f.now.Add(d), fn: fn}
	f.addLocked(t)
	return t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{clock: f, at: f.now.Add(d), period: d, ch: make(chan time.Time, 1)}
	f.addLocked(t)
	return fakeTicker{t}
}

// Advance moves the clock forward by d, firing every timer that comes due on
// the way. It returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		t := f.nextDueLocked(target)
		if t == nil {
			f.now = target
			f.mu.Unlock()
			return target
		}
		if t.at.After(f.now) {
			f.now = t.at
		}
		firedAt := f.now
		if t.period > 0 {
			t.at = t.at.Add(t.period)
		} else {
			f.removeLocked(t)
		}
		fn, ch := t.fn, t.ch
		f.mu.Unlock()

		if fn != nil {
			fn()
			continue
		}
		select {
		case ch <- firedAt:
		default:
		}
	}
}

// Pending reports how many timers and tickers are armed.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) addLocked(t *fakeTimer) {
	f.seq++
	t.seq = f.seq
	f.timers = append(f.timers, t)
}

func (f *Fake) removeLocked(t *fakeTimer) bool {
	for i, x := range f.timers {
		if x == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range f.timers {
		if t.at.After(target) {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

type fakeTimer struct {
	clock  *Fake
	at     time.Time
	seq    uint64
	fn     func()
	period time.Duration
	ch     chan time.Time
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeLocked(t)
}

type fakeTicker struct {
	t *fakeTimer
}

func (k fakeTicker) C() <-chan time.Time { return k.t.ch }

func (k fakeTicker) Stop() { k.t.Stop() }
