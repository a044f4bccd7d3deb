package pool

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Acquire after the owning Set has been closed.
var ErrClosed = errors.New("pool closed")

// ResourceNotFoundError reports a request against a pool name that was
// never configured.
type ResourceNotFoundError struct {
	Name string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource pool not found: %q", e.Name)
}
