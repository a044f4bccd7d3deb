// Package automation executes named commands against an external
// automation endpoint over Socket.IO. A command is emitted as its own
// event carrying the argument map; the endpoint answers on the paired
// "<name>:result" event. Runs without a configured endpoint get the
// NoopRunner, which fails any command with a descriptive error.
package automation
