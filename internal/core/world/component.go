package world

import (
	"fmt"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
)

// Component is one typed instance attached to an entity. It is active while
// it holds a resource built by its System.
//
// Components are owned by their World and must only be used from the
// goroutine that owns it. A removed component rejects every mutation with
// ErrComponentNotFound.
type Component struct {
	world  *World
	handle handle
	key    models.Key
	ctype  *schema.ComponentType
	system System

	values        []fields.Value
	authoritative bool
	resource      any
	released      bool
}

func newComponent(w *World, entity models.EntityID, ct *schema.ComponentType) *Component {
	c := &Component{
		world:  w,
		key:    models.Key{Entity: entity, Type: ct.ID()},
		ctype:  ct,
		system: w.systems.For(ct.ID()),
		values: make([]fields.Value, ct.NumFields()),
	}
	for i := range c.values {
		c.values[i] = ct.Field(schema.FieldID(i)).Default()
	}
	return c
}

func (c *Component) Key() models.Key                      { return c.key }
func (c *Component) Entity() models.EntityID              { return c.key.Entity }
func (c *Component) TypeID() models.TypeID                { return c.key.Type }
func (c *Component) ComponentType() *schema.ComponentType { return c.ctype }
func (c *Component) System() System                       { return c.system }
func (c *Component) World() *World                        { return c.world }

// IsActive reports whether the component currently holds a resource.
func (c *Component) IsActive() bool {
	return c.resource != nil
}

// IsAuthoritative reports whether this replica may mutate the component
// without a canonical source.
func (c *Component) IsAuthoritative() bool {
	return c.authoritative
}

// Resource returns what the System built on activation, or nil.
func (c *Component) Resource() any {
	return c.resource
}

// Value returns field f. Slice payloads alias component storage.
func (c *Component) Value(f schema.FieldID) fields.Value {
	c.checkField(f)
	return c.values[f]
}

// Values returns a deep copy of every field value in declaration order.
func (c *Component) Values() []fields.Value {
	out := make([]fields.Value, len(c.values))
	for i, v := range c.values {
		out[i] = v.Clone()
	}
	return out
}

// Dependencies returns the targets of the component's outgoing edges.
func (c *Component) Dependencies() []models.Key {
	var out []models.Key
	for _, e := range c.world.graph.forward[c.handle] {
		out = append(out, e.target)
	}
	return out
}

func (c *Component) checkField(f schema.FieldID) {
	if int(f) >= len(c.values) {
		panic(fmt.Sprintf("world: field %d out of range for %s (%d fields)", f, c.key.Type, len(c.values)))
	}
}

// UpdateField sets field f to value, which must have the field's kind. An
// unset value clears the field. A non-canonical update requires the component
// to be delegated to this replica.
//
// Active components are updated in place when their System supports it for f;
// otherwise they are deactivated and, once the value changed, activated again.
// A failing reactivation leaves the component inactive without failing the
// update.
func (c *Component) UpdateField(f schema.FieldID, value fields.Value, canonical bool) error {
	if c.released {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, c.key)
	}
	c.checkField(f)
	field := c.ctype.Field(f)
	if value.Kind() != field.Kind {
		return fmt.Errorf("%w: %s.%s wants %s, got %s", ErrInvalidFieldType, c.key, field.Name, field.Kind, value.Kind())
	}
	if !canonical && !c.authoritative {
		c.world.logger.Warn("Rejected non-authoritative field update",
			log.Stringer("component", c.key),
			log.String("field", field.Name),
		)
		return fmt.Errorf("%w: %s", ErrNotAuthoritative, c.key)
	}

	wasActive := c.IsActive()
	live := c.system.CanLiveUpdateField(f)
	if wasActive && !live {
		c.world.deactivate(c)
	}

	if field.IsDependency() {
		c.world.removeEdges(c, f)
	}
	if value.IsSet() {
		c.values[f].Assign(value)
	} else {
		c.values[f].Clear()
	}
	if field.IsDependency() {
		c.world.addEdges(c, f)
	}
	c.world.onUpdateField(c, f, canonical)

	switch {
	case live && c.IsActive():
		if c.system.LiveUpdateField(c, f) {
			c.world.propagate(c)
		}
	case !live && wasActive:
		if err := c.world.activate(c); err != nil {
			c.world.logger.Debug("Component stayed inactive after update",
				log.Stringer("component", c.key),
				log.String("field", field.Name),
				log.Error(err),
			)
		}
	}
	return nil
}

// Activate builds the component's resource. Active components are left as is.
// On success every inactive dependent is given a chance to activate too.
func (c *Component) Activate() error {
	if c.released {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, c.key)
	}
	return c.world.activate(c)
}

// Deactivate releases the resource, after deactivating every active
// dependent. Inactive components are left as is.
func (c *Component) Deactivate() {
	if c.released {
		return
	}
	c.world.deactivate(c)
}

// Delegate grants this replica authority over the component.
func (c *Component) Delegate() {
	if c.released || c.authoritative {
		return
	}
	c.authoritative = true
	c.world.publish(ComponentEvent{Kind: EventComponentDelegated, Key: c.key})
}

// Undelegate revokes authority, deactivating the component first when its
// System only runs authoritative components.
func (c *Component) Undelegate() {
	if c.released || !c.authoritative {
		return
	}
	if c.system.RequiresAuthority() {
		c.world.deactivate(c)
	}
	c.authoritative = false
	c.world.publish(ComponentEvent{Kind: EventComponentUndelegated, Key: c.key})
}

// activateSelf runs the activation guards and the System constructor for c
// alone.
func (c *Component) activateSelf() error {
	if c.system.RequiresAuthority() && !c.authoritative {
		return fmt.Errorf("%w: %s", ErrNotAuthoritative, c.key)
	}
	for _, e := range c.world.graph.forward[c.handle] {
		target := c.world.lookup(e.target)
		if target == nil || !target.IsActive() {
			return fmt.Errorf("%w: %s needs %s", ErrDependenciesInactive, c.key, e.target)
		}
	}
	resource, err := c.system.Activate(c)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActivationFailure, c.key, err)
	}
	if resource == nil {
		return fmt.Errorf("%w: %s: no resource", ErrActivationFailure, c.key)
	}
	c.resource = resource
	c.world.onActivate(c)
	return nil
}

func (c *Component) deactivateSelf() {
	if !c.IsActive() {
		return
	}
	resource := c.resource
	c.resource = nil
	c.system.Deactivate(c, resource)
	c.world.onDeactivate(c)
}
