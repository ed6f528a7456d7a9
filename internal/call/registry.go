package call

import "sync"

// Registry is the arena of live channels keyed by ID, with a secondary
// index from forward-parent to children. Non-owning references elsewhere
// store plain IDs and resolve them here; after teardown a stale ID simply
// fails the lookup instead of reaching freed state.
//
// The children index replaces the legacy linear scan of a line's whole
// channel collection on every end/answer. The "no forwarder of a
// forwarder" invariant is preserved: link rejects a parent that is itself
// a forward child.
type Registry struct {
	mu       sync.RWMutex
	channels map[ID]*Channel
	children map[ID]map[ID]struct{}
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[ID]*Channel),
		children: make(map[ID]map[ID]struct{}),
	}
}

// add registers a freshly allocated channel.
func (r *Registry) add(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.id] = ch
}

// remove retires the channel and cleans both sides of the parent index.
func (r *Registry) remove(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[id]
	if !ok {
		return
	}
	delete(r.channels, id)
	delete(r.children, id)
	if ch.parentID != 0 {
		if set, ok := r.children[ch.parentID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.children, ch.parentID)
			}
		}
	}
}

// Get resolves a channel ID. Returns nil for retired or unknown IDs.
func (r *Registry) Get(id ID) *Channel {
	if id == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[id]
}

// link records child as a forward child of parent and stamps the child's
// parent pointer. Returns false when either side is retired or when the
// parent is itself a forward child (a forwarder must never be a parent).
func (r *Registry) link(parent, child ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.channels[parent]
	if !ok || p.parentID != 0 {
		return false
	}
	c, ok := r.channels[child]
	if !ok {
		return false
	}
	set, ok := r.children[parent]
	if !ok {
		set = make(map[ID]struct{})
		r.children[parent] = set
	}
	set[child] = struct{}{}

	c.mu.Lock()
	c.parentID = parent
	c.mu.Unlock()
	return true
}

// Children returns the live forward children of the given parent.
func (r *Registry) Children(parent ID) []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.children[parent]
	out := make([]ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Count returns the number of live channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// All returns a snapshot slice of every live channel.
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}
