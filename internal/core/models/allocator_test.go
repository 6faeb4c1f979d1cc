package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorFreshIDs(t *testing.T) {
	a := NewIDAllocator()
	assert.Equal(t, EntityID(1), a.Allocate())
	assert.Equal(t, EntityID(2), a.Allocate())
	assert.Equal(t, EntityID(3), a.Allocate())
	assert.Equal(t, 3, a.Len())
}

func TestAllocatorReusesFreedID(t *testing.T) {
	a := NewIDAllocator()
	first, second, third := a.Allocate(), a.Allocate(), a.Allocate()
	require.NoError(t, a.Deallocate(second))
	assert.False(t, a.IsAllocated(second))

	reused := a.Allocate()
	assert.Contains(t, []EntityID{second}, reused, "expected a previously freed id, not a fresh one")
	assert.NotEqual(t, first, reused)
	assert.NotEqual(t, third, reused)
	assert.True(t, a.IsAllocated(reused))

	assert.Equal(t, EntityID(4), a.Allocate())
}

func TestAllocatorDeallocateUnknown(t *testing.T) {
	a := NewIDAllocator()
	assert.ErrorIs(t, a.Deallocate(1), ErrNotAllocated)

	id := a.Allocate()
	require.NoError(t, a.Deallocate(id))
	assert.ErrorIs(t, a.Deallocate(id), ErrNotAllocated, "double free must fail")
}

func TestAllocatorNeverHandsOutHeldID(t *testing.T) {
	a := NewIDAllocator()
	held := make(map[EntityID]bool)
	for i := 0; i < 100; i++ {
		id := a.Allocate()
		assert.False(t, held[id], "id %d handed out twice", id)
		held[id] = true
		if i%3 == 0 {
			require.NoError(t, a.Deallocate(id))
			delete(held, id)
		}
	}
}
