package rulegen

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a Breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned while a Breaker rejects calls.
var ErrBreakerOpen = errors.New("rule generator circuit is open")

// Breaker stops calling a generator that keeps failing. After MaxFailures
// consecutive failures it opens for Cooldown, then lets one trial call
// through; the trial's outcome closes or reopens it.
type Breaker struct {
	MaxFailures int
	Cooldown    time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	trial    bool
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// 3 failures and a 30s cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{MaxFailures: maxFailures, Cooldown: cooldown, state: BreakerClosed, now: time.Now}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.Cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.trial = true
		return nil
	case BreakerHalfOpen:
		if b.trial {
			return ErrBreakerOpen
		}
		b.trial = true
	}
	return nil
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if err == nil {
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.MaxFailures {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
