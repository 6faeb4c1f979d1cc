package physics

import (
	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/systems"
	"github.com/zeusync/replica/internal/core/world"
)

// SquadType groups member transforms around a leader transform.
const SquadType models.TypeID = "squad"

const (
	FieldLeader  schema.FieldID = 0
	FieldMembers schema.FieldID = 1
)

// SquadComponentType declares the squad fields.
func SquadComponentType() *schema.ComponentType {
	return schema.MustComponentType(SquadType,
		schema.DependencyField("leader", TransformType, false, false),
		schema.DependencyField("members", TransformType, true, false),
		schema.ValueField("name", fields.KindString, true),
	)
}

// Formation is the resource of an active squad.
type Formation struct {
	// Spread is the distance from the leader to its farthest active member.
	Spread float32
}

// Squads measures formations. Any change to a squad's own fields reactivates
// it; a moving leader or member only measures again.
func Squads() systems.Func {
	return systems.Func{
		OnActivate: func(c *world.Component) (any, error) {
			f := &Formation{}
			measure(c, f)
			return f, nil
		},
		OnDependencyUpdate: func(c *world.Component, _ schema.FieldID) bool {
			f := c.Resource().(*Formation)
			before := f.Spread
			measure(c, f)
			return f.Spread != before
		},
	}
}

func measure(c *world.Component, f *Formation) {
	f.Spread = 0
	id, ok := fields.As[fields.Entity](c.Value(FieldLeader))
	if !ok {
		return
	}
	leader := bodyOf(c.World(), models.EntityID(id))
	if leader == nil {
		return
	}
	for _, member := range c.Value(FieldMembers).EntityIDs() {
		if b := bodyOf(c.World(), member); b != nil {
			f.Spread = max(f.Spread, Distance(leader, b))
		}
	}
}
