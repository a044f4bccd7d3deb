// Package retry wraps fallible operations with bounded retries and
// jittered exponential backoff. The jitter keeps a batch of tasks that
// failed together from hammering the same endpoint in lockstep when their
// delays expire.
package retry
