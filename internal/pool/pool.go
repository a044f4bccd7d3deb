package pool

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Pool is a single counting semaphore. It hands out up to `capacity` units
// and queues everyone else in strict arrival order.
type Pool struct {
	name     string
	capacity int
	logger   *slog.Logger

	// mutex protects available, waiters and closed.
	mutex     sync.Mutex
	available int
	waiters   *list.List // of *waiter
	closed    bool
}

// waiter is one queued acquisition. err is written under the pool mutex
// before ready is closed, so the woken goroutine reads it safely.
type waiter struct {
	amount int
	ready  chan struct{}
	err    error
}

func newPool(name string, capacity int, logger *slog.Logger) *Pool {
	return &Pool{
		name:      name,
		capacity:  capacity,
		logger:    logger.With("pool", name),
		available: capacity,
		waiters:   list.New(),
	}
}

// acquire blocks until `amount` units are free and every earlier waiter has
// been served, then transfers the units to the returned Guard.
func (p *Pool) acquire(ctx context.Context, amount int) (*Guard, error) {
	if amount < 1 {
		return nil, fmt.Errorf("pool %q: requested amount must be positive, got %d", p.name, amount)
	}
	if amount > p.capacity {
		return nil, fmt.Errorf("pool %q: requested %d units but capacity is %d", p.name, amount, p.capacity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, fmt.Errorf("pool %q: %w", p.name, ErrClosed)
	}

	// Fast path: units are free and nobody is ahead of us.
	if p.waiters.Len() == 0 && p.available >= amount {
		p.available -= amount
		p.mutex.Unlock()
		p.logger.Debug("Acquired pool units.", "amount", amount)
		return &Guard{pool: p, amount: amount}, nil
	}

	w := &waiter{amount: amount, ready: make(chan struct{})}
	elem := p.waiters.PushBack(w)
	p.mutex.Unlock()
	p.logger.Debug("Waiting for pool units.", "amount", amount)

	select {
	case <-w.ready:
		if w.err != nil {
			return nil, w.err
		}
		p.logger.Debug("Acquired pool units after waiting.", "amount", amount)
		return &Guard{pool: p, amount: amount}, nil

	case <-ctx.Done():
		p.mutex.Lock()
		select {
		case <-w.ready:
			// The grant and the cancellation raced and the grant won. The
			// units are ours, so hand them straight back before reporting
			// the cancellation.
			if w.err == nil {
				p.releaseLocked(amount)
			}
			p.mutex.Unlock()
		default:
			p.waiters.Remove(elem)
			// Removing a queued request can unblock the ones behind it.
			p.notifyLocked()
			p.mutex.Unlock()
		}
		return nil, ctx.Err()
	}
}

// release returns units to the pool and wakes whoever now fits.
func (p *Pool) release(amount int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.releaseLocked(amount)
	p.logger.Debug("Released pool units.", "amount", amount)
}

func (p *Pool) releaseLocked(amount int) {
	p.available += amount
	p.notifyLocked()
}

// notifyLocked serves queued waiters strictly from the front. The head
// waiter gates everyone behind it until its own request fits; that is the
// whole fairness guarantee.
func (p *Pool) notifyLocked() {
	for p.waiters.Len() > 0 {
		head := p.waiters.Front()
		w := head.Value.(*waiter)
		if p.available < w.amount {
			return
		}
		p.available -= w.amount
		p.waiters.Remove(head)
		close(w.ready)
	}
}

// close rejects future acquisitions and fails everyone still queued.
func (p *Pool) close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for p.waiters.Len() > 0 {
		head := p.waiters.Front()
		w := head.Value.(*waiter)
		p.waiters.Remove(head)
		w.err = fmt.Errorf("pool %q: %w", p.name, ErrClosed)
		close(w.ready)
	}
}
