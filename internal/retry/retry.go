package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDeadlineExceeded is returned (wrapped) by Poll and PollAttempts when
// the condition never became true inside the retry budget.
var ErrDeadlineExceeded = errors.New("retry budget exhausted")

// Condition is checked once per poll tick. Returning done=true stops the
// poll successfully. A non-nil error is remembered and reported if the
// budget runs out; wrap it with Fatal to abort the poll immediately.
type Condition func(ctx context.Context) (done bool, err error)

// Poll invokes condition immediately and then at every interval until it
// reports done, the deadline elapses, or ctx is cancelled. The total wall
// time is bounded by deadline + interval: a tick that starts before the
// deadline is allowed to finish.
func Poll(ctx context.Context, interval, deadline time.Duration, condition Condition) error {
	start := time.Now()
	var lastErr error

	for {
		done, err := condition(ctx)
		if done && err == nil {
			return nil
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			lastErr = err
		}

		if time.Since(start) >= deadline {
			return budgetError(deadline, lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait aborted: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

// PollAttempts is the attempt-capped variant of Poll: condition is checked
// up to attempts times with interval between checks.
func PollAttempts(ctx context.Context, interval time.Duration, attempts int, condition Condition) error {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		done, err := condition(ctx)
		if done && err == nil {
			return nil
		}
		if err != nil {
			if IsFatal(err) {
				return err
			}
			lastErr = err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait aborted: %w", ctx.Err())
		case <-time.After(interval):
		}
	}

	return budgetError(time.Duration(attempts)*interval, lastErr)
}

func budgetError(budget time.Duration, lastErr error) error {
	if lastErr != nil {
		return fmt.Errorf("%w after %s (last error: %v)", ErrDeadlineExceeded, budget, lastErr)
	}
	return fmt.Errorf("%w after %s", ErrDeadlineExceeded, budget)
}

// Config holds exponential backoff configuration.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Option is a functional option for backoff configuration.
type Option func(*Config)

// WithExponentialBackoff executes the operation with exponential backoff
// retry. It retries the operation up to MaxRetries times, with exponentially
// increasing delays between attempts. Context cancellation is respected
// throughout.
//
// Errors wrapped with Fatal() are not retried.
func WithExponentialBackoff(ctx context.Context, operation func() error, opts ...Option) error {
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if IsFatal(err) {
			return fmt.Errorf("fatal error (not retrying): %w", err)
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled after %d attempts: %w", attempt+1, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries+1, lastErr)
}

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithInitialDelay sets the initial delay between retries.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		c.InitialDelay = d
	}
}

// WithMaxDelay sets the maximum delay between retries.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		c.MaxDelay = d
	}
}

// FatalError wraps an error to mark it as fatal (non-retryable).
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal marks an error as fatal (non-retryable). Polls and backoff loops
// stop immediately when the operation returns a fatal error.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal checks if an error is fatal (non-retryable).
func IsFatal(err error) bool {
	var fatalErr *FatalError
	return errors.As(err, &fatalErr)
}
