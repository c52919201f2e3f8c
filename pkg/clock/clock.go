package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so date rollover and cooldowns can be simulated.
type Clock interface {
	Now() time.Time
}

// Real uses time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// New returns the process clock.
func New() Clock { return Real{} }

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set jumps the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// DateKey returns the calendar date of t in its own location, e.g. 2024-10-10.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
