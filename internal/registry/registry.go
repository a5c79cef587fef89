package registry

import "sync"

// Registry is the read-only slug -> entity definition lookup consumed by the
// engine. Load replaces the whole map; individual entities are never mutated
// after load.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

func New() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Get returns the entity with the given slug, or nil.
func (r *Registry) Get(slug string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[slug]
}

// All returns all registered entities.
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	return entities
}

// Load replaces all entities in the registry. Called during startup and
// after admin mutations.
func (r *Registry) Load(entities []*Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Slug] = e
	}
}
