// Package executor is the engine core. It dispatches submitted tasks
// continuously as their dependencies reach a terminal state, bounded by a
// global concurrency cap, and produces exactly one terminal result per
// task.
//
// Dispatch order among ready tasks is priority first (higher wins), then
// submission order. Tasks whose dependencies can never resolve, because
// they reference keys missing from the submission or sit in a dependency
// cycle, are skipped instead of wedging the run.
package executor
