package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Config declares one named pool.
type Config struct {
	Name     string
	Capacity int
}

// Set is the collection of pools available to one run. It is immutable
// after construction; only pool occupancy changes.
type Set struct {
	pools map[string]*Pool
}

// NewSet validates the configs and builds every pool at full capacity.
func NewSet(configs []Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pools := make(map[string]*Pool, len(configs))
	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("pool with empty name")
		}
		if cfg.Capacity < 1 {
			return nil, fmt.Errorf("pool %q: capacity must be positive, got %d", cfg.Name, cfg.Capacity)
		}
		if _, dup := pools[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate pool %q", cfg.Name)
		}
		pools[cfg.Name] = newPool(cfg.Name, cfg.Capacity, logger)
	}

	return &Set{pools: pools}, nil
}

// Acquire blocks until `amount` units of the named pool are held, the
// context expires, or the set is closed. Unknown names fail immediately
// with a *ResourceNotFoundError.
func (s *Set) Acquire(ctx context.Context, name string, amount int) (*Guard, error) {
	p, ok := s.pools[name]
	if !ok {
		return nil, &ResourceNotFoundError{Name: name}
	}
	return p.acquire(ctx, amount)
}

// Available returns the number of free units in the named pool.
func (s *Set) Available(name string) (int, error) {
	p, ok := s.pools[name]
	if !ok {
		return 0, &ResourceNotFoundError{Name: name}
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.available, nil
}

// Capacity returns the configured size of the named pool.
func (s *Set) Capacity(name string) (int, error) {
	p, ok := s.pools[name]
	if !ok {
		return 0, &ResourceNotFoundError{Name: name}
	}
	return p.capacity, nil
}

// Names returns the configured pool names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close rejects future acquisitions on every pool and fails all queued
// waiters. Guards already held stay valid and may still be released.
func (s *Set) Close() {
	for _, p := range s.pools {
		p.close()
	}
}
