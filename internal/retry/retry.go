package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy configures how an operation is retried.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Zero disables retrying entirely.
	MaxRetries int

	// BaseBackoff is the delay before the first retry. Each further retry
	// doubles it.
	BaseBackoff time.Duration

	// MaxBackoff caps the pre-jitter delay. Zero means no cap.
	MaxBackoff time.Duration
}

// Do runs op until it succeeds, the retry budget is spent, or ctx ends.
//
// The first attempt always runs. After a failure with retries remaining,
// Do sleeps for an exponentially growing jittered delay, then tries again.
// When the budget is spent the final failure is returned wrapped in an
// *ExhaustedError, unless the policy never allowed retries, in which case
// the failure comes back untouched. An error wrapped with Stop ends the
// loop at once and is returned unwrapped. A context cancellation or
// deadline surfaces as ctx.Err() immediately, without dressing it up as
// exhaustion.
//
// onRetry, if non-nil, is called before each sleep with the number of the
// attempt that just failed (1-based), its error, and the chosen delay.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error, delay time.Duration)) error {
	var lastErr error
	attempts := p.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		var stop *stopError
		if errors.As(lastErr, &stop) {
			return stop.err
		}
		if attempt == attempts {
			break
		}

		delay := p.delay(attempt)
		if onRetry != nil {
			onRetry(attempt, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if p.MaxRetries == 0 {
		return lastErr
	}
	return &ExhaustedError{Retries: p.MaxRetries, Last: lastErr}
}

// delay computes the backoff before the retry that follows the given
// failed attempt: BaseBackoff doubled per attempt, capped at MaxBackoff,
// plus up to half of itself in jitter.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseBackoff << uint(attempt-1)
	if d < p.BaseBackoff {
		d = p.MaxBackoff // shift overflow, only reachable with huge attempt counts
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/2+1)
}
