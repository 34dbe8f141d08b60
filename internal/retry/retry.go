package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photo-ingest/internal/logging"
	"photo-ingest/internal/metrics"
)

// Policy configures retry behavior for an operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the backoff after the first failed attempt. The delay
	// grows linearly with the attempt number and is always non-decreasing.
	BaseDelay time.Duration
	// Timeout bounds a single attempt. A timed-out attempt is retryable.
	Timeout time.Duration
	// RetryIf decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	RetryIf func(error) bool
}

// Fast returns the preset for cheap local operations: few attempts,
// short timeout, small backoff.
func Fast() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Timeout:     10 * time.Second,
	}
}

// Slow returns the preset for heavyweight external or codec operations:
// more patience per attempt and a larger backoff base.
func Slow() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Timeout:     30 * time.Second,
	}
}

// ExhaustedError is returned by Do when the attempt budget is exhausted or
// the policy predicate rejected the error. It carries the last underlying
// error and unwraps to it.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempt(s): %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Do runs op under the policy, retrying failed attempts with a growing
// backoff. The name labels log lines and metrics. Each attempt gets its
// own timeout context derived from ctx; a per-attempt timeout counts as a
// retryable failure unless the budget is spent.
func Do[T any](ctx context.Context, name string, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}

		result, err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			if attempt > 1 {
				logging.Info("%s succeeded on retry %d", name, attempt-1)
				metrics.RetrySuccessAfterRetry.WithLabelValues(name).Inc()
			}
			return result, nil
		}

		lastErr = err

		// The parent context going away is not retryable: the caller is done.
		if ctx.Err() != nil {
			return zero, &ExhaustedError{Op: name, Attempts: attempt, Last: lastErr}
		}

		if policy.RetryIf != nil && !policy.RetryIf(err) {
			logging.Debug("%s failed with non-retryable error: %v", name, err)
			return zero, &ExhaustedError{Op: name, Attempts: attempt, Last: lastErr}
		}

		if attempt < attempts {
			backoff := policy.BaseDelay * time.Duration(attempt)
			metrics.RetryAttempts.WithLabelValues(name).Inc()
			logging.Debug("%s attempt %d/%d failed: %v, retrying in %v",
				name, attempt, attempts, err, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, &ExhaustedError{Op: name, Attempts: attempt, Last: lastErr}
			}
		}
	}

	logging.Warn("%s failed after %d attempts: %v", name, attempts, lastErr)
	metrics.RetryExhausted.WithLabelValues(name).Inc()
	return zero, &ExhaustedError{Op: name, Attempts: attempts, Last: lastErr}
}
