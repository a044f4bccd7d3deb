// Package metrics exposes the engine's Prometheus instrumentation. All
// collectors live in a private registry and are fed from progress events,
// so the engine itself stays free of metrics calls.
package metrics
