package dispatch

// Registry is the ordered collection of subscriber handles.
// It is not safe for concurrent use on its own; the Dispatcher that owns it
// guards every access with its lock.
type Registry struct {
	subs []*Subscriber
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a handle. No deduplication is done.
func (r *Registry) Add(s *Subscriber) {
	r.subs = append(r.subs, s)
}

// Remove drops the first entry identical to s and reports whether one was found.
func (r *Registry) Remove(s *Subscriber) bool {
	for i, sub := range r.subs {
		if sub == s {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether s is registered.
func (r *Registry) Contains(s *Subscriber) bool {
	for _, sub := range r.subs {
		if sub == s {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.subs)
}

// Each calls fn for every entry in registration order.
func (r *Registry) Each(fn func(*Subscriber)) {
	for _, sub := range r.subs {
		fn(sub)
	}
}

// compact removes every entry in failed, keeping the order of the rest.
// A handle registered more than once is dropped entirely.
func (r *Registry) compact(failed map[*Subscriber]struct{}) {
	if len(failed) == 0 {
		return
	}
	kept := r.subs[:0]
	for _, sub := range r.subs {
		if _, ok := failed[sub]; !ok {
			kept = append(kept, sub)
		}
	}
	for i := len(kept); i < len(r.subs); i++ {
		r.subs[i] = nil
	}
	r.subs = kept
}
