// Package retry provides retry functionality with exponential backoff and jitter
// for calls to the recommendation service, the chat assistant and the database.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryableError marks a failure worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps an error to indicate it should be retried.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do returns it at once, unwrapped, whatever
// RetryIf says.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// settings of a Retrier. The delay doubles after every failed attempt.
type settings struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	jitter       float64
	retryIf      func(error) bool
	onRetry      func(attempt int, err error, delay time.Duration)
}

// Option is a functional option for configuring retries.
type Option func(*settings)

// WithMaxAttempts sets the maximum number of attempts, the first included.
func WithMaxAttempts(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithInitialDelay sets the wait before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.initialDelay = d
		}
	}
}

// WithMaxDelay caps the wait between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.maxDelay = d
		}
	}
}

// WithJitter spreads each delay by up to ±j of its value (0 to 1).
func WithJitter(j float64) Option {
	return func(s *settings) {
		if j >= 0 && j <= 1 {
			s.jitter = j
		}
	}
}

// WithRetryIf classifies failures. Without it only RetryableError is retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(s *settings) {
		s.retryIf = fn
	}
}

// WithOnRetry sets a callback run before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// Retrier manages retry operations.
type Retrier struct {
	settings settings
}

// New creates a Retrier: three attempts, 100ms first delay, 30s cap, 10% jitter.
func New(opts ...Option) *Retrier {
	s := settings{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Retrier{settings: s}
}

// Do runs operation until it succeeds, fails with an error that is not
// retried, runs out of attempts or ctx ends. A RetryableError or Permanent
// wrapper is removed from the returned error.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		if !r.shouldRetry(err) {
			return err
		}

		lastErr = err
		if re := (*RetryableError)(nil); errors.As(err, &re) {
			lastErr = re.Err
		}
		if attempt >= r.settings.maxAttempts {
			return lastErr
		}

		delay := r.backoff(attempt)
		if r.settings.onRetry != nil {
			r.settings.onRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.settings.retryIf != nil {
		return r.settings.retryIf(err)
	}
	return IsRetryable(err)
}

// backoff returns initialDelay·2^(attempt-1), capped at maxDelay, with jitter.
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := r.settings.initialDelay
	for i := 1; i < attempt && delay < r.settings.maxDelay; i++ {
		delay *= 2
	}
	if delay > r.settings.maxDelay {
		delay = r.settings.maxDelay
	}

	if r.settings.jitter > 0 {
		spread := float64(delay) * r.settings.jitter * (rand.Float64()*2 - 1)
		delay += time.Duration(spread)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// ExternalServiceRetrier returns a Retrier for HTTP calls to the recommendation
// service and the chat assistant. retryIf decides which failures are transient.
func ExternalServiceRetrier(retryIf func(error) bool, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(2*time.Second),
		WithJitter(0.2),
		WithRetryIf(retryIf),
		WithOnRetry(onRetry),
	)
}

// DatabaseRetrier returns a Retrier for transactions that lost a lock race.
func DatabaseRetrier(retryIf func(error) bool) *Retrier {
	return New(
		WithInitialDelay(20*time.Millisecond),
		WithMaxDelay(500*time.Millisecond),
		WithRetryIf(retryIf),
	)
}
