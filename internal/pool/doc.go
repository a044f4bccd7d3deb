// Package pool implements named counting semaphores with strict FIFO
// admission. Tasks acquire units from a pool before touching the scarce
// thing it models (browser sessions, API quota, database connections) and
// release them through the returned Guard. Waiters are served in arrival
// order: the request at the head of the queue blocks everything behind it
// until it fits, so a large request cannot starve.
package pool
