package recorder

import "sync"

// Registry is the index of all currently active recordings, keyed by
// (subscriber, model). It is the only state shared between the scheduler,
// the watchers, and the bot handlers; all mutation goes through it.
type Registry struct {
	mu   sync.RWMutex
	recs map[Key]*Recording
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{recs: make(map[Key]*Recording)}
}

// Insert adds a recording. Returns false without inserting when a recording
// for the same key is already active.
func (g *Registry) Insert(rec *Recording) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.recs[rec.Key()]; exists {
		return false
	}
	g.recs[rec.Key()] = rec
	return true
}

// Remove deletes the recording for key, if present.
func (g *Registry) Remove(key Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.recs, key)
}

// Get returns the active recording for key.
func (g *Registry) Get(key Key) (*Recording, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.recs[key]
	return rec, ok
}

// Has reports whether a recording is active for key.
func (g *Registry) Has(key Key) bool {
	_, ok := g.Get(key)
	return ok
}

// ForSubscriber returns all active recordings belonging to one subscriber.
func (g *Registry) ForSubscriber(subscriberID int64) []*Recording {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Recording
	for _, rec := range g.recs {
		if rec.SubscriberID == subscriberID {
			out = append(out, rec)
		}
	}
	return out
}

// Snapshot returns all active recordings.
func (g *Registry) Snapshot() []*Recording {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Recording, 0, len(g.recs))
	for _, rec := range g.recs {
		out = append(out, rec)
	}
	return out
}

// Len returns the number of active recordings.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.recs)
}
