package retry

import "fmt"

// ExhaustedError reports an operation that still failed when no retries
// remained. It distinguishes "ran out of attempts" from an operation that
// was only ever tried once.
type ExhaustedError struct {
	// Retries is the number of retry attempts consumed, not counting the
	// initial attempt.
	Retries int
	// Last is the failure from the final attempt.
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d retries: %v", e.Retries, e.Last)
}

// Unwrap exposes the final attempt's failure to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// stopError marks a failure that retrying can never fix.
type stopError struct {
	err error
}

func (e *stopError) Error() string {
	return e.err.Error()
}

func (e *stopError) Unwrap() error {
	return e.err
}

// Stop wraps an error so Do gives up immediately and returns the original
// error untouched. Use it for failures that are permanent by nature, like
// a request against a pool that does not exist.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}
