// Package inflight keeps track of ids that have a network request outstanding.
package inflight

import "sync"

// Registry holds the ids with an outstanding request.
// An id is registered at most once at any time.
type Registry struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	epoch uint64
}

func New() *Registry {
	return &Registry{
		ids: make(map[string]struct{}),
	}
}

// TryAcquire registers id and returns true, or returns false if id is already registered.
func (r *Registry) TryAcquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Release removes id. Releasing an id that is not registered is a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
}

// Acquire registers id and returns a guard releasing it.
// If id is already registered, it returns a nil guard and false.
// Releasing a nil guard is a no-op, so callers can always defer guard.Release().
func (r *Registry) Acquire(id string) (*Guard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return nil, false
	}
	r.ids[id] = struct{}{}
	return &Guard{r: r, id: id, epoch: r.epoch}, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Reset drops every registration.
// Guards handed out before the reset do not affect registrations made after it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[string]struct{})
	r.epoch++
}

// Guard is a registration obtained through Acquire.
type Guard struct {
	r     *Registry
	id    string
	epoch uint64
	once  sync.Once
}

// ID returns the registered id.
func (g *Guard) ID() string {
	if g == nil {
		return ""
	}
	return g.id
}

// Release removes the registration. Only the first call has an effect.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.r.mu.Lock()
		defer g.r.mu.Unlock()
		if g.r.epoch == g.epoch {
			delete(g.r.ids, g.id)
		}
	})
}
