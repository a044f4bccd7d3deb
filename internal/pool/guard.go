package pool

import "sync"

// Guard holds units acquired from a pool until released. Release is safe to
// call any number of times; only the first call returns the units, so a
// worker releasing early and the engine's cleanup sweep cannot double-credit
// the pool.
type Guard struct {
	pool    *Pool
	amount  int
	release sync.Once
}

// Release returns the held units to the pool.
func (g *Guard) Release() {
	g.release.Do(func() {
		g.pool.release(g.amount)
	})
}

// Amount returns the number of units this guard holds.
func (g *Guard) Amount() int {
	return g.amount
}

// Pool returns the name of the pool the units came from.
func (g *Guard) Pool() string {
	return g.pool.name
}
