// Package dag provides the dependency graph over submitted task keys. The
// executor builds a Graph per submission, reads dependents and in-degrees
// from it to track readiness, and asks it for cycle diagnostics when
// dispatch stalls.
package dag
