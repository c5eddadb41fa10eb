package relay

import (
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAssignsUniqueIdentities(t *testing.T) {
	r := NewRegistry()

	seen := make(map[uuid.UUID]struct{})
	for range 200 {
		id := r.Register(newFakeTransport())
		require.NotEqual(t, uuid.Nil, id)
		seen[id] = struct{}{}
	}

	assert.Len(t, seen, 200)
	assert.Equal(t, 200, r.Len())
}

func TestRegistry_RegisterSameTransportTwice(t *testing.T) {
	r := NewRegistry()
	tr := newFakeTransport()

	first := r.Register(tr)
	second := r.Register(tr)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegeneratesCollidingIdentity(t *testing.T) {
	dup := uuid.MustParse("6f1d7a3e-0000-4000-8000-000000000001")
	fresh := uuid.MustParse("6f1d7a3e-0000-4000-8000-000000000002")
	sequence := []uuid.UUID{dup, uuid.Nil, dup, fresh}
	r := newRegistry(func() uuid.UUID {
		next := sequence[0]
		sequence = sequence[1:]
		return next
	})

	assert.Equal(t, dup, r.Register(newFakeTransport()))
	assert.Equal(t, fresh, r.Register(newFakeTransport()))
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	tr := newFakeTransport()
	r.Register(tr)

	assert.True(t, r.Unregister(tr))
	assert.False(t, r.Unregister(tr), "second unregister is a no-op")
	assert.False(t, r.Unregister(newFakeTransport()), "unknown transport is a no-op")
	assert.Equal(t, 0, r.Len())

	_, ok := r.Identity(tr)
	assert.False(t, ok)
}

func TestRegistry_IdentityIsReleasedOnUnregister(t *testing.T) {
	id := uuid.MustParse("6f1d7a3e-0000-4000-8000-000000000009")
	r := newRegistry(func() uuid.UUID { return id })

	tr := newFakeTransport()
	r.Register(tr)
	r.Unregister(tr)

	assert.Equal(t, id, r.Register(newFakeTransport()), "identity can be reused once nothing references it")
}

func TestRegistry_TargetsExcludesSender(t *testing.T) {
	r := NewRegistry()
	a, b, c := newFakeTransport(), newFakeTransport(), newFakeTransport()
	idA := r.Register(a)
	r.Register(b)
	r.Register(c)

	targets := slices.Collect(r.Targets(idA))

	require.Len(t, targets, 2)
	for _, tr := range targets {
		assert.NotSame(t, a, tr)
	}
	assert.True(t, slices.ContainsFunc(targets, func(tr Transport) bool { return tr == Transport(b) }))
	assert.True(t, slices.ContainsFunc(targets, func(tr Transport) bool { return tr == Transport(c) }))
}

func TestRegistry_TargetsSkipsTransportsClosedBeforeIteration(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeTransport(), newFakeTransport()
	r.Register(a)
	r.Register(b)

	seq := r.All()
	b.close()

	assert.Equal(t, []Transport{a}, slices.Collect(seq))
}

func TestRegistry_TargetsReflectsStateAtCallTime(t *testing.T) {
	r := NewRegistry()
	a := newFakeTransport()
	r.Register(a)

	seq := r.All()
	r.Register(newFakeTransport())

	assert.Equal(t, []Transport{a}, slices.Collect(seq), "late registrations are not part of an existing sequence")
}

func TestRegistry_TargetsStopsEarly(t *testing.T) {
	r := NewRegistry()
	for range 5 {
		r.Register(newFakeTransport())
	}

	visited := 0
	for range r.All() {
		visited++
		break
	}
	assert.Equal(t, 1, visited)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := newFakeTransport()
			id := r.Register(tr)
			for range r.Targets(id) {
			}
			r.Unregister(tr)
			r.Unregister(tr)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
