// Package registry provides the central "glue" between task declarations
// and compiled Go workers.
//
// The Registry stores mappings between the worker names used in grid files
// (e.g. "http_request") and the Go functions that implement them. Built-in
// modules register their workers during application startup; the executor
// looks workers up by name at dispatch time. A task naming an unregistered
// worker fails on its own without touching the rest of the run.
package registry
