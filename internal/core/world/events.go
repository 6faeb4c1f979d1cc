package world

import (
	"github.com/zeusync/replica/internal/core/events/bus"
	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/schema"
)

// Event types published on the world's event bus.
const (
	EventEntityAdded          = "entity.added"
	EventEntityRemoved        = "entity.removed"
	EventComponentAdded       = "component.added"
	EventComponentRemoved     = "component.removed"
	EventComponentUpdated     = "component.updated"
	EventComponentActivated   = "component.activated"
	EventComponentDeactivated = "component.deactivated"
	EventDependencyAdded      = "dependency.added"
	EventDependencyRemoved    = "dependency.removed"
	EventComponentDelegated   = "component.delegated"
	EventComponentUndelegated = "component.undelegated"
	EventDependencyCycle      = "dependency.cycle"
)

// EntityEvent reports an entity being added or removed.
type EntityEvent struct {
	Kind   string
	Entity models.EntityID
}

func (e EntityEvent) Type() string { return e.Kind }

// ComponentEvent reports a lifecycle change of one component.
type ComponentEvent struct {
	Kind string
	Key  models.Key
}

func (e ComponentEvent) Type() string { return e.Kind }

// FieldEvent reports a field update. Value is a copy of the new value.
type FieldEvent struct {
	Key       models.Key
	Field     schema.FieldID
	Value     fields.Value
	Canonical bool
}

func (FieldEvent) Type() string { return EventComponentUpdated }

// DependencyEvent reports an edge from Source's Field to Target.
type DependencyEvent struct {
	Kind   string
	Source models.Key
	Field  schema.FieldID
	Target models.Key
}

func (e DependencyEvent) Type() string { return e.Kind }

// CycleEvent reports a propagation that reached a component already on its
// own path. Path starts at the updated component and ends at the repeat.
type CycleEvent struct {
	Path []models.Key
}

func (CycleEvent) Type() string { return EventDependencyCycle }

func (w *World) publish(ev bus.Event) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ev); err != nil {
		w.logger.Warn("World event handler failed",
			log.String("event", ev.Type()),
			log.Error(err),
		)
	}
}
