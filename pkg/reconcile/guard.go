package reconcile

import "sync"

// Guard tracks in-flight operations so at most one runs per sync key. The
// zero value is ready to use.
type Guard struct {
	mu      sync.Mutex
	pending map[SyncKey]struct{}
}

// Begin marks key as in flight. It returns false when an operation for key
// is already pending, in which case the caller should drop the request.
func (g *Guard) Begin(key SyncKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		g.pending = make(map[SyncKey]struct{})
	}
	if _, busy := g.pending[key]; busy {
		return false
	}
	g.pending[key] = struct{}{}
	return true
}

// End releases key
func (g *Guard) End(key SyncKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, key)
}

// Busy reports whether any operation is in flight
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending) > 0
}
