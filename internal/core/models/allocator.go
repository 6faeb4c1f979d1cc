package models

import (
	"errors"
	"sync"
)

// ErrNotAllocated is returned when releasing an id that is not currently held.
var ErrNotAllocated = errors.New("entity id is not allocated")

// IDAllocator issues entity ids. Fresh ids count up from 1; released ids are
// kept on a free list and handed out again before any fresh id.
type IDAllocator struct {
	mu        sync.Mutex
	next      EntityID
	allocated map[EntityID]struct{}
	free      []EntityID
}

// NewIDAllocator creates an allocator whose first fresh id is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{
		next:      1,
		allocated: make(map[EntityID]struct{}),
	}
}

// Allocate returns a free id. Recycled ids are reused most-recently-freed first.
func (a *IDAllocator) Allocate() EntityID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var id EntityID
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		id = a.next
		a.next++
	}

	a.allocated[id] = struct{}{}
	return id
}

// Deallocate releases id for reuse.
func (a *IDAllocator) Deallocate(id EntityID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.allocated[id]; !ok {
		return ErrNotAllocated
	}
	delete(a.allocated, id)
	a.free = append(a.free, id)
	return nil
}

// IsAllocated reports whether id is currently held.
func (a *IDAllocator) IsAllocated(id EntityID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.allocated[id]
	return ok
}

// Len returns the number of ids currently held.
func (a *IDAllocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated)
}
