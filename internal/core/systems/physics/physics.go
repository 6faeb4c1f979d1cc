package physics

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// TransformType is a position relative to an optional parent transform.
const TransformType models.TypeID = "transform"

const (
	FieldParent   schema.FieldID = 0
	FieldPosition schema.FieldID = 1
)

// TransformComponentType declares the transform fields.
func TransformComponentType() *schema.ComponentType {
	return schema.MustComponentType(TransformType,
		schema.DependencyField("parent", TransformType, false, true),
		schema.ValueField("position", fields.KindVector3, false),
	)
}

// Body is the resource of an active transform.
type Body struct {
	Local mgl32.Vec3
	World mgl32.Vec3
}

// Transforms resolves transform hierarchies. Moving a transform updates every
// descendant in place; changing a parent reactivates the transform.
type Transforms struct{}

func (Transforms) Activate(c *world.Component) (any, error) {
	b := &Body{}
	resolve(c, b)
	return b, nil
}

func (Transforms) Deactivate(*world.Component, any) {}

func (Transforms) CanLiveUpdateField(f schema.FieldID) bool {
	return f != FieldParent
}

// LiveUpdateField reports a change only when the world position moved.
func (Transforms) LiveUpdateField(c *world.Component, _ schema.FieldID) bool {
	b := c.Resource().(*Body)
	before := b.World
	resolve(c, b)
	return b.World != before
}

func (Transforms) CanLiveUpdateDependencyField(schema.FieldID) bool { return true }

func (Transforms) LiveUpdateDependencyField(c *world.Component, _ schema.FieldID) bool {
	b := c.Resource().(*Body)
	before := b.World
	resolve(c, b)
	return b.World != before
}

func (Transforms) RequiresAuthority() bool { return false }

func resolve(c *world.Component, b *Body) {
	if p, ok := fields.As[fields.Vector3](c.Value(FieldPosition)); ok {
		b.Local = p.Vec()
	} else {
		b.Local = mgl32.Vec3{}
	}
	b.World = b.Local
	if parent := Parent(c); parent != nil {
		b.World = parent.World.Add(b.Local)
	}
}

// Parent returns the body of the parent transform, or nil for roots and
// parents that are not active.
func Parent(c *world.Component) *Body {
	id, ok := fields.As[fields.Entity](c.Value(FieldParent))
	if !ok {
		return nil
	}
	return bodyOf(c.World(), models.EntityID(id))
}

// bodyOf returns the body of id's transform, or nil when it is not active.
func bodyOf(w *world.World, id models.EntityID) *Body {
	t, ok := w.Component(id, TransformType)
	if !ok || !t.IsActive() {
		return nil
	}
	return t.Resource().(*Body)
}

// Distance computes the Euclidean distance between two bodies in world space.
func Distance(a, b *Body) float32 {
	return b.World.Sub(a.World).Len()
}
