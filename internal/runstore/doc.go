// Package runstore keeps the record of every run the process has executed.
// Records live in memory only; restarting the process forgets them. The
// store uses sync.Map because runs are written by one goroutine each while
// the API reads them concurrently.
package runstore
