package systems

import (
	"errors"

	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// ErrNoConstructor is returned by a Func system without OnActivate.
var ErrNoConstructor = errors.New("system has no constructor")

// Marker is the resource held by components of a Passive system.
type Marker struct{}

// Passive activates every component with a Marker and keeps no state. It is
// the system of data-only component types.
type Passive struct {
	// Authority makes components activatable only where delegated.
	Authority bool
	// Frozen lists fields whose change needs a full reactivation.
	Frozen []schema.FieldID
}

func (p Passive) Activate(*world.Component) (any, error)                { return Marker{}, nil }
func (p Passive) Deactivate(*world.Component, any)                      {}
func (p Passive) LiveUpdateField(*world.Component, schema.FieldID) bool { return false }
func (p Passive) CanLiveUpdateDependencyField(schema.FieldID) bool      { return true }
func (p Passive) RequiresAuthority() bool                               { return p.Authority }

func (p Passive) CanLiveUpdateField(f schema.FieldID) bool {
	for _, frozen := range p.Frozen {
		if frozen == f {
			return false
		}
	}
	return true
}

func (p Passive) LiveUpdateDependencyField(*world.Component, schema.FieldID) bool {
	return false
}

// Func builds a System from callbacks. A nil OnLiveUpdate makes every field
// change go through reactivation; a nil OnDependencyUpdate does the same for
// changes behind dependency fields.
type Func struct {
	OnActivate         func(c *world.Component) (any, error)
	OnDeactivate       func(c *world.Component, resource any)
	OnLiveUpdate       func(c *world.Component, f schema.FieldID) bool
	OnDependencyUpdate func(c *world.Component, f schema.FieldID) bool
	Authority          bool
}

func (s Func) Activate(c *world.Component) (any, error) {
	if s.OnActivate == nil {
		return nil, ErrNoConstructor
	}
	return s.OnActivate(c)
}

func (s Func) Deactivate(c *world.Component, resource any) {
	if s.OnDeactivate != nil {
		s.OnDeactivate(c, resource)
	}
}

func (s Func) CanLiveUpdateField(schema.FieldID) bool { return s.OnLiveUpdate != nil }

func (s Func) LiveUpdateField(c *world.Component, f schema.FieldID) bool {
	return s.OnLiveUpdate(c, f)
}

func (s Func) CanLiveUpdateDependencyField(schema.FieldID) bool { return s.OnDependencyUpdate != nil }

func (s Func) LiveUpdateDependencyField(c *world.Component, f schema.FieldID) bool {
	return s.OnDependencyUpdate(c, f)
}

func (s Func) RequiresAuthority() bool { return s.Authority }
