package bus

import "sync"

// Registry is the authoritative set of live subscribers. Gateway accept and
// close paths mutate it while the bus iterates it on every publish.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscriber)}
}

func (r *Registry) Add(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.id] = s
}

// Remove deletes id and returns the entry it held, if any.
func (r *Registry) Remove(id string) (*Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	return s, ok
}

func (r *Registry) Get(id string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[id]
	return s, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// ForEach snapshots the current set under the read lock and calls fn
// without holding it, so fn may register or unregister freely.
func (r *Registry) ForEach(fn func(*Subscriber)) {
	r.mu.RLock()
	subs := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.RUnlock()

	for _, s := range subs {
		fn(s)
	}
}
