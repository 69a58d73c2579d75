// Package registry tracks per-application sampling state: whether log
// shipping is enabled for the app and the reservoir holding its pending
// events.
package registry

import (
	"sync"

	"github.com/canopymon/canopy/internal/reservoir"
)

// Registry maps application names to their reservoirs and cached
// enabled flags. Reservoirs are created lazily, at most once per app,
// under concurrent first access from many goroutines.
type Registry struct {
	mu         sync.RWMutex
	reservoirs map[string]*reservoir.Reservoir
	enabled    map[string]bool
}

func New() *Registry {
	return &Registry{
		reservoirs: make(map[string]*reservoir.Reservoir),
		enabled:    make(map[string]bool),
	}
}

// GetOrCreate returns the reservoir for appName, creating one with the
// given capacity if absent.
func (g *Registry) GetOrCreate(appName string, capacity int) *reservoir.Reservoir {
	g.mu.RLock()
	res := g.reservoirs[appName]
	g.mu.RUnlock()
	if res != nil {
		return res
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if res = g.reservoirs[appName]; res == nil {
		res = reservoir.New(capacity)
		g.reservoirs[appName] = res
	}
	return res
}

// Get returns the reservoir for appName, or nil if none exists yet.
func (g *Registry) Get(appName string) *reservoir.Reservoir {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reservoirs[appName]
}

// Enabled reports the cached flag for appName, consulting lookup and
// caching the answer on a miss. The cache is eventually consistent: a
// config change takes effect on the access after Invalidate.
func (g *Registry) Enabled(appName string, lookup func(string) bool) bool {
	g.mu.RLock()
	enabled, ok := g.enabled[appName]
	g.mu.RUnlock()
	if ok {
		return enabled
	}

	enabled = lookup(appName)
	g.mu.Lock()
	g.enabled[appName] = enabled
	g.mu.Unlock()
	return enabled
}

// Invalidate drops the cached enabled flag so the next access re-reads
// authoritative config.
func (g *Registry) Invalidate(appName string) {
	g.mu.Lock()
	delete(g.enabled, appName)
	g.mu.Unlock()
}

// Remove discards all state for appName, including any pending
// reservoir.
func (g *Registry) Remove(appName string) {
	g.mu.Lock()
	delete(g.reservoirs, appName)
	delete(g.enabled, appName)
	g.mu.Unlock()
}

// Clear discards every app entry. Used on subsystem stop and explicit
// resets.
func (g *Registry) Clear() {
	g.mu.Lock()
	g.reservoirs = make(map[string]*reservoir.Reservoir)
	g.enabled = make(map[string]bool)
	g.mu.Unlock()
}

// AppNames lists every app with a reservoir.
func (g *Registry) AppNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.reservoirs))
	for name := range g.reservoirs {
		names = append(names, name)
	}
	return names
}

// PendingEvents sums the retained events across all reservoirs.
func (g *Registry) PendingEvents() int {
	g.mu.RLock()
	reservoirs := make([]*reservoir.Reservoir, 0, len(g.reservoirs))
	for _, res := range g.reservoirs {
		reservoirs = append(reservoirs, res)
	}
	g.mu.RUnlock()

	total := 0
	for _, res := range reservoirs {
		total += res.Size()
	}
	return total
}
