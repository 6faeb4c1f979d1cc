package world

import (
	"fmt"

	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
)

// System builds and maintains the resources behind active components of one
// component-type family. Implementations are called synchronously from the
// goroutine that owns the world.
type System interface {
	// Activate constructs the resource of c. A nil resource is a failure.
	Activate(c *Component) (any, error)
	// Deactivate releases a resource previously returned by Activate.
	Deactivate(c *Component, resource any)

	// CanLiveUpdateField reports whether field f of an active component may
	// change without a deactivate/activate round trip.
	CanLiveUpdateField(f schema.FieldID) bool
	// LiveUpdateField applies the current value of f to the resource of c and
	// reports whether dependents must be notified.
	LiveUpdateField(c *Component, f schema.FieldID) bool

	// CanLiveUpdateDependencyField reports whether a change in the component
	// referenced by dependency field f can be absorbed in place.
	CanLiveUpdateDependencyField(f schema.FieldID) bool
	// LiveUpdateDependencyField is called on c when a component referenced by
	// its dependency field f propagated a change. It reports whether the
	// change must travel further.
	LiveUpdateDependencyField(c *Component, f schema.FieldID) bool

	// RequiresAuthority reports whether components must be delegated to this
	// replica before they can activate.
	RequiresAuthority() bool
}

// Systems maps component types to the System handling them. Types without a
// registration use the fallback.
type Systems struct {
	byType   map[models.TypeID]System
	fallback System
}

// NewSystems creates a registry. A nil fallback activates every component
// with an empty resource and accepts every live update.
func NewSystems(fallback System) *Systems {
	if fallback == nil {
		fallback = inert{}
	}
	return &Systems{
		byType:   make(map[models.TypeID]System),
		fallback: fallback,
	}
}

// Register binds sys to the component type id.
func (s *Systems) Register(id models.TypeID, sys System) error {
	if _, exists := s.byType[id]; exists {
		return fmt.Errorf("%w: %s", ErrSystemExists, id)
	}
	s.byType[id] = sys
	return nil
}

// For returns the system handling id.
func (s *Systems) For(id models.TypeID) System {
	if sys, ok := s.byType[id]; ok {
		return sys
	}
	return s.fallback
}

type inert struct{}

func (inert) Activate(*Component) (any, error)                          { return struct{}{}, nil }
func (inert) Deactivate(*Component, any)                                {}
func (inert) CanLiveUpdateField(schema.FieldID) bool                    { return true }
func (inert) LiveUpdateField(*Component, schema.FieldID) bool           { return false }
func (inert) CanLiveUpdateDependencyField(schema.FieldID) bool          { return true }
func (inert) LiveUpdateDependencyField(*Component, schema.FieldID) bool { return false }
func (inert) RequiresAuthority() bool                                   { return false }
