package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed lets calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects calls until the cool-down elapses.
	Open
	// HalfOpen lets trial calls through to probe recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a remote dependency.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open. Errors for which the
	// IgnoreError predicate holds are returned but not counted as failures.
	Execute(fn func() error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Option configures a breaker.
type Option func(*breaker)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) { b.now = now }
}

// WithIgnoreError marks errors that should not trip the circuit
// (for example a caller cancelling its own context).
func WithIgnoreError(ignore func(error) bool) Option {
	return func(b *breaker) { b.ignore = ignore }
}

type breaker struct {
	failureThreshold uint32
	successThreshold uint32
	timeout          time.Duration

	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State

	now    func() time.Time
	ignore func(error) bool
	mutex  sync.Mutex
}

// New creates a circuit breaker.
// failureThreshold: consecutive failures that open the circuit.
// successThreshold: consecutive half-open successes that close it again.
// timeout: how long the circuit stays open before probing.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.advance()
	return b.state
}

func (b *breaker) Execute(fn func() error) error {
	b.mutex.Lock()
	b.advance()
	if b.state == Open {
		b.mutex.Unlock()
		return ErrCircuitOpen
	}
	b.mutex.Unlock()

	err := fn()

	b.mutex.Lock()
	defer b.mutex.Unlock()
	switch {
	case err == nil:
		b.onSuccess()
	case b.ignore != nil && b.ignore(err):
	default:
		b.onFailure()
	}
	return err
}

// advance moves Open to HalfOpen once the cool-down has elapsed. Caller holds the mutex.
func (b *breaker) advance() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.consecutiveSuccesses = 0
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			b.reset()
		}
	case Closed:
		b.consecutiveFailures = 0
	}
}

func (b *breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

func (b *breaker) reset() {
	b.state = Closed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}
