package nfc

import (
	"sync"
	"time"
)

// Clock abstracts time for the polling loops and event timestamps so tests
// can drive them without real delays.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker is the subset of time.Ticker used by the agent.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the time package.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }

// FakeClock implements Clock with time that only moves on Advance.
type FakeClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	tickers []*fakeTicker
	timers  []*fakeTimer
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	fc := &FakeClock{now: start}
	fc.cond = sync.NewCond(&fc.mu)
	return fc
}

func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *FakeClock) NewTicker(d time.Duration) Ticker {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ft := &fakeTicker{
		clock:    fc,
		interval: d,
		next:     fc.now.Add(d),
		c:        make(chan time.Time, 1),
	}
	fc.tickers = append(fc.tickers, ft)
	fc.cond.Broadcast()
	return ft
}

func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ft := &fakeTimer{deadline: fc.now.Add(d), c: make(chan time.Time, 1)}
	fc.timers = append(fc.timers, ft)
	fc.cond.Broadcast()
	return ft.c
}

// Advance moves time forward by d and fires every ticker period and timer
// that elapsed. A ticker whose channel is full drops the tick, like
// time.Ticker.
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)

	for _, t := range fc.tickers {
		if t.stopped || t.interval <= 0 {
			continue
		}
		for !fc.now.Before(t.next) {
			select {
			case t.c <- fc.now:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}

	pending := fc.timers[:0]
	for _, t := range fc.timers {
		if fc.now.Before(t.deadline) {
			pending = append(pending, t)
			continue
		}
		t.c <- fc.now
	}
	fc.timers = pending
}

// WaitForWaiters blocks until at least n active tickers or timers exist,
// which lets a test advance time only once a goroutine is waiting on it.
func (fc *FakeClock) WaitForWaiters(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for fc.waitersLocked() < n {
		fc.cond.Wait()
	}
}

func (fc *FakeClock) waitersLocked() int {
	n := len(fc.timers)
	for _, t := range fc.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	next     time.Time
	c        chan time.Time
	stopped  bool
}

func (ft *fakeTicker) C() <-chan time.Time {
	return ft.c
}

func (ft *fakeTicker) Stop() {
	ft.clock.mu.Lock()
	defer ft.clock.mu.Unlock()
	ft.stopped = true
}

type fakeTimer struct {
	deadline time.Time
	c        chan time.Time
}
