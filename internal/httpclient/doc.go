// Package httpclient wraps net/http with the instrumentation every worker
// needs: latency logging, default header merging, per-request timeouts,
// and capped response reads. A non-2xx status is a valid response the
// worker gets to inspect, not a transport error.
package httpclient
