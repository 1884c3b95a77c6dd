// Package registry provides a generation-checked slot registry, the same
// index+generation handle scheme the original simulator's RPC boundary
// uses for KeyRegistryId (raw parts subkey1/subkey2): a Handle stays valid
// only for the generation of the slot it names, so a stale Handle from a
// removed-then-reused slot is detected rather than silently aliasing the
// new occupant.
package registry

import (
	"errors"
	"sync"
)

// ErrHandleNotFound is returned when a Handle's slot is empty or its
// generation no longer matches the slot's current generation.
var ErrHandleNotFound = errors.New("registry: handle not found")

// Handle names a slot in a Registry at a specific generation. The zero
// Handle is never issued by Insert and is safe to use as a sentinel.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Registry is a thread-safe generation-checked slot map. It is the
// bookkeeping structure behind the Action Key Registry: each keyed action's
// Key is stored in a slot, and the Scheduler keeps a side table from the
// Key's identity to the Handle that names it (see Scheduler.WireKey).
type Registry[T any] struct {
	mu       sync.RWMutex
	slots    []slot[T]
	freeList []uint32
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// New creates an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Insert allocates a slot for value and returns the Handle naming it,
// reusing a freed slot (and bumping its generation) when one is available.
func (r *Registry[T]) Insert(value T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.freeList); n > 0 {
		idx := r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
		s := &r.slots[idx]
		s.value = value
		s.occupied = true
		return Handle{Index: idx, Generation: s.generation}
	}

	// Generations start at 1, so the zero Handle never names a live slot.
	idx := uint32(len(r.slots))
	r.slots = append(r.slots, slot[T]{value: value, generation: 1, occupied: true})
	return Handle{Index: idx, Generation: 1}
}

// Get returns the value at h if h's slot is still occupied at h's
// generation, and false otherwise.
func (r *Registry[T]) Get(h Handle) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if int(h.Index) >= len(r.slots) {
		return zero, false
	}
	s := &r.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return zero, false
	}
	return s.value, true
}

// Remove frees h's slot, bumping its generation so any outstanding copy of
// h becomes stale. Returns ErrHandleNotFound if h does not name a live slot.
func (r *Registry[T]) Remove(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(h.Index) >= len(r.slots) {
		return ErrHandleNotFound
	}
	s := &r.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return ErrHandleNotFound
	}

	var zero T
	s.value = zero
	s.occupied = false
	s.generation++
	r.freeList = append(r.freeList, h.Index)
	return nil
}

// Len returns the number of currently occupied slots.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.freeList)
}

// Sweep removes every slot for which keep returns false, freeing its slot
// for reuse and bumping its generation, and returns how many slots it
// freed. The Scheduler does not call it: it frees a key's slot as soon as
// the key is cancelled or its one-shot action is popped.
func (r *Registry[T]) Sweep(keep func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	var zero T
	for idx := range r.slots {
		s := &r.slots[idx]
		if !s.occupied {
			continue
		}
		if !keep(s.value) {
			s.value = zero
			s.occupied = false
			s.generation++
			r.freeList = append(r.freeList, uint32(idx))
			removed++
		}
	}
	return removed
}
