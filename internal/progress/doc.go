// Package progress is the in-process event stream for run observability.
// The executor publishes lifecycle events (run and task starts, finishes,
// retries, skips, periodic stats) and observers subscribe with a bounded
// buffer. Publishing never blocks: a full subscriber loses its oldest
// event, so a stalled observer can slow down or starve only itself.
package progress
