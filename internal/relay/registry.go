package relay

import (
	"iter"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/chatrelay/internal/metrics"
)

// Transport is the relay's view of a client connection. Send must not block on
// the network and must be safe to call concurrently with Close on the concrete type.
type Transport interface {
	Send(data []byte) error
	IsOpen() bool
}

// Registry maps live transports to their relay identities.
// The registry never owns a transport: removing an entry does not close it.
type Registry struct {
	mu    sync.RWMutex
	conns map[Transport]uuid.UUID
	ids   map[uuid.UUID]struct{}
	newID func() uuid.UUID
}

func NewRegistry() *Registry {
	return newRegistry(uuid.New)
}

func newRegistry(newID func() uuid.UUID) *Registry {
	return &Registry{
		conns: make(map[Transport]uuid.UUID),
		ids:   make(map[uuid.UUID]struct{}),
		newID: newID,
	}
}

// Register stores t under a fresh identity and returns it. Registering a
// transport that is already present returns its existing identity.
func (r *Registry) Register(t Transport) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.conns[t]; ok {
		return id
	}

	id := r.newID()
	for _, taken := r.ids[id]; taken || id == uuid.Nil; _, taken = r.ids[id] {
		id = r.newID()
	}

	r.conns[t] = id
	r.ids[id] = struct{}{}
	metrics.RelayConnectedClients.Set(float64(len(r.conns)))
	return id
}

// Unregister removes t. It reports whether an entry was removed, so repeated
// calls are harmless no-ops.
func (r *Registry) Unregister(t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.conns[t]
	if !ok {
		return false
	}

	delete(r.conns, t)
	delete(r.ids, id)
	metrics.RelayConnectedClients.Set(float64(len(r.conns)))
	return true
}

// Identity returns the identity assigned to t.
func (r *Registry) Identity(t Transport) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[t]
	return id, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Targets snapshots the registry at call time and lazily yields every transport
// whose identity differs from exclude and which is open when reached. Passing
// uuid.Nil excludes nobody.
func (r *Registry) Targets(exclude uuid.UUID) iter.Seq[Transport] {
	r.mu.RLock()
	snapshot := make([]Transport, 0, len(r.conns))
	for t, id := range r.conns {
		if exclude != uuid.Nil && id == exclude {
			continue
		}
		snapshot = append(snapshot, t)
	}
	r.mu.RUnlock()

	return func(yield func(Transport) bool) {
		for _, t := range snapshot {
			if !t.IsOpen() {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// All yields every open transport.
func (r *Registry) All() iter.Seq[Transport] {
	return r.Targets(uuid.Nil)
}
