// Package circuitbreaker implements the Circuit Breaker pattern for fault tolerance.
// While a remote service keeps failing, calls fail fast and callers switch to
// their local fallback instead of waiting on timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets one trial call through at a time.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned while a half-open trial is in flight.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type settings struct {
	name             string
	failureThreshold int
	successThreshold int
	coolDown         time.Duration
	onStateChange    func(name string, from, to State)
	isFailure        func(error) bool
	now              func() time.Time
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*settings)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many successful trials close the circuit.
func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successThreshold = n
		}
	}
}

// WithTimeout sets how long the circuit stays open before a trial call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.coolDown = d
		}
	}
}

// WithOnStateChange sets the state change callback. It runs under the
// breaker lock and must not call back into the breaker.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) {
		s.onStateChange = fn
	}
}

// WithIsFailure decides which errors count against the service. Errors it
// rejects are recorded as successes.
func WithIsFailure(fn func(error) bool) Option {
	return func(s *settings) {
		s.isFailure = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// Counts are totals since the breaker was created.
type Counts struct {
	Requests       int
	TotalSuccesses int
	TotalFailures  int
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	settings settings

	mu        sync.Mutex
	state     State
	counts    Counts
	failures  int // consecutive, while closed
	successes int // consecutive, while half-open
	openedAt  time.Time
	trial     bool
}

// New creates a breaker that opens after five consecutive failures, waits 30s
// and closes after two successful trials.
func New(name string, opts ...Option) *CircuitBreaker {
	s := settings{
		name:             name,
		failureThreshold: 5,
		successThreshold: 2,
		coolDown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &CircuitBreaker{settings: s}
}

// Execute runs fn if the circuit lets it through and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.settings.now().Sub(cb.openedAt) < cb.settings.coolDown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trial = true
		return nil
	default:
		if cb.trial {
			return ErrTooManyRequests
		}
		cb.trial = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts.Requests++
	cb.trial = false

	failed := err != nil
	if failed && cb.settings.isFailure != nil {
		failed = cb.settings.isFailure(err)
	}

	if !failed {
		cb.counts.TotalSuccesses++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.settings.successThreshold {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.counts.TotalFailures++
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.settings.failureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openedAt = cb.settings.now()
	}

	if cb.settings.onStateChange != nil {
		cb.settings.onStateChange(cb.settings.name, from, to)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Counts returns the current counts.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// RemoteServiceBreaker returns a breaker for an HTTP dependency with a local
// fallback (recommendation service, chat assistant). isFailure should ignore
// caller mistakes such as validation errors.
func RemoteServiceBreaker(name string, isFailure func(error) bool, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		name,
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithIsFailure(isFailure),
		WithOnStateChange(onStateChange),
	)
}
