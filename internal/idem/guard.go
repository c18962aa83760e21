// Package idem remembers recently applied request ids so retried or duplicated
// mutations can be absorbed instead of applied twice.
package idem

const DefaultCapacity = 200

// Guard is a bounded insertion-ordered map from request id to the outcome
// first produced for it. When full, the oldest inserted id is evicted first.
// Guard is not safe for concurrent use; each card actor owns its own.
type Guard[V any] struct {
	capacity int
	order    []string
	head     int
	set      map[string]V
}

func NewGuard[V any](capacity int) *Guard[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Guard[V]{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		set:      make(map[string]V, capacity),
	}
}

// Seen reports whether id was remembered and not yet evicted. The empty id is
// never seen.
func (g *Guard[V]) Seen(id string) bool {
	_, ok := g.Lookup(id)
	return ok
}

// Lookup returns the value remembered for id.
func (g *Guard[V]) Lookup(id string) (V, bool) {
	if id == "" {
		var zero V
		return zero, false
	}
	v, ok := g.set[id]
	return v, ok
}

// Remember records id with v. Remembering an id already present keeps both its
// position and its first value.
func (g *Guard[V]) Remember(id string, v V) {
	if id == "" || g.Seen(id) {
		return
	}
	if len(g.order) < g.capacity {
		g.order = append(g.order, id)
	} else {
		delete(g.set, g.order[g.head])
		g.order[g.head] = id
		g.head = (g.head + 1) % g.capacity
	}
	g.set[id] = v
}

func (g *Guard[V]) Len() int { return len(g.set) }
