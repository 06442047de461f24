// Package memory implements signal.Provider in process memory, for tests
// and single-process hosts (the braindemo CLI) that don't need the
// redis-backed Provider's cross-process durability.
package memory

import (
	"sort"
	"sync"

	"github.com/brainrun/brains/brain/signal"
)

// Provider is a priority queue of signals ordered by signal.Priority,
// guarded by a mutex since the engine and a host's own goroutines (e.g. a
// CLI's stdin-watching goroutine for KILL) queue concurrently.
type Provider struct {
	mu      sync.Mutex
	pending []signal.Signal
}

// New returns an empty in-memory signal queue.
func New() *Provider { return &Provider{} }

// Queue implements signal.Provider.
func (p *Provider) Queue(s signal.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, s)
	sort.SliceStable(p.pending, func(i, j int) bool {
		return signal.Priority(p.pending[i].Kind) < signal.Priority(p.pending[j].Kind)
	})
}

// Peek implements signal.Provider.
func (p *Provider) Peek() (signal.Signal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return signal.Signal{}, false
	}
	return p.pending[0], true
}

// Take implements signal.Provider. The in-memory provider never blocks even
// when nonBlocking is false: a single-process host has no other goroutine
// that could deliver a signal while this one is parked, so blocking would
// deadlock instead of waiting productively.
func (p *Provider) Take(filter signal.Set, nonBlocking bool) (signal.Signal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.pending {
		if len(filter) > 0 {
			if _, ok := filter[s.Kind]; !ok {
				continue
			}
		}
		p.pending = append(p.pending[:i], p.pending[i+1:]...)
		return s, true
	}
	return signal.Signal{}, false
}
