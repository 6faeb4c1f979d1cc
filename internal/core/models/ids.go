package models

import "fmt"

// EntityID identifies an entity within a world. Zero is never allocated.
type EntityID uint64

// TypeID identifies a component type. Ids are unique per process.
type TypeID string

// Key identifies one component: the pair of its entity and its type.
type Key struct {
	Entity EntityID
	Type   TypeID
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.Entity, k.Type)
}
