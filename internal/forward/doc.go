// Package forward relays progress events to an external Socket.IO server,
// so dashboards outside the process can watch runs live. Forwarding is
// strictly best-effort: a dead endpoint suspends it without ever touching
// the run.
package forward
