// Package taskctx is the facade handed to every worker. It scopes the
// run's shared facilities (resource pools, the HTTP client, the automation
// endpoint, the progress bus) to one task: acquisitions are tracked so the
// engine can sweep up anything the worker forgot to release, and progress
// events are stamped with the task's identity.
package taskctx
