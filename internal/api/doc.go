// Package api is the HTTP front door: submitting runs, inspecting stored
// run records, and streaming live progress events over a websocket. The
// API never blocks on the engine; submissions are handed off and answered
// with 202 immediately.
package api
