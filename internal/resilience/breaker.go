// Package resilience guards calls to external stores.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling fn while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls for
// timeout. After that a single trial call is let through: success closes the
// breaker, failure opens it again.
type Breaker struct {
	mu          sync.Mutex
	name        string
	state       state
	failures    int
	probing     bool
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	ignore      []error
	now         func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: max(maxFailures, 1),
		timeout:     timeout,
		now:         time.Now,
	}
}

// Named sets the name logged on state changes and returns b.
func (b *Breaker) Named(name string) *Breaker {
	b.name = name
	return b
}

// Ignoring makes errors matching any of errs (by errors.Is) count as neither
// failure nor success, e.g. a caller giving up with context.Canceled.
func (b *Breaker) Ignoring(errs ...error) *Breaker {
	b.ignore = append(b.ignore, errs...)
	return b
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	trial, ok := b.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.probing = false
	}
	switch {
	case err == nil:
		b.failures = 0
		b.transition(stateClosed)
	case b.ignored(err):
	default:
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(stateOpen)
		}
	}
	return err
}

// State reports "closed", "open" or "half_open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		return stateHalfOpen.String()
	}
	return b.state.String()
}

// admit reports whether a call may proceed and whether it is the half-open trial.
func (b *Breaker) admit() (trial, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if b.now().Sub(b.openedAt) < b.timeout {
			return false, false
		}
		b.transition(stateHalfOpen)
	}
	if b.state == stateHalfOpen {
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, true
}

func (b *Breaker) ignored(err error) bool {
	for _, e := range b.ignore {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to state) {
	if b.state == to {
		return
	}
	if b.name != "" {
		slog.Warn("circuit breaker state change", "breaker", b.name, "from", b.state.String(), "to", to.String())
	}
	b.state = to
}
