// Package replica keeps a client world in step with a server. Apply is the
// only path from decoded ops into a world; Session feeds it from a transport.
package replica

import (
	"errors"

	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// Apply applies one server op to w and reports the outcome. Server ops are
// canonical. Field indices and kinds coming from the wire are checked before
// they reach the world, and an AddComponent op either lands with all of its
// initial values or not at all.
func Apply(w *world.World, op protocol.Op) protocol.Status {
	switch op.Kind {
	case protocol.OpNoOp:
		return protocol.StatusSuccess
	case protocol.OpAddEntity:
		return StatusOf(w.AddEntity(op.Entity))
	case protocol.OpRemoveEntity:
		return StatusOf(w.RemoveEntity(op.Entity))
	case protocol.OpAddComponent:
		return addComponent(w, op)
	case protocol.OpUpdateComponent:
		return updateComponent(w, op)
	case protocol.OpActivateComponent:
		c, status := component(w, op)
		if !status.Ok() {
			return status
		}
		return StatusOf(c.Activate())
	case protocol.OpDeactivateComponent:
		c, status := component(w, op)
		if !status.Ok() {
			return status
		}
		c.Deactivate()
		return protocol.StatusSuccess
	case protocol.OpDelegateComponent:
		return StatusOf(w.DelegateComponent(op.Entity, op.Type))
	case protocol.OpUndelegateComponent:
		return StatusOf(w.UndelegateComponent(op.Entity, op.Type))
	case protocol.OpRemoveComponent:
		return StatusOf(w.RemoveComponent(op.Entity, op.Type))
	default:
		return protocol.StatusUnknownOp
	}
}

func addComponent(w *world.World, op protocol.Op) protocol.Status {
	if !w.HasEntity(op.Entity) {
		return protocol.StatusEntityDoesntExist
	}
	ct, ok := w.Schema().Lookup(op.Type)
	if !ok {
		return protocol.StatusInvalidComponentType
	}
	if _, exists := w.Component(op.Entity, op.Type); exists {
		return protocol.StatusComponentAlreadyExists
	}
	for _, fv := range op.Fields {
		if !validField(ct, fv) {
			return protocol.StatusInvalidFieldType
		}
	}

	c, err := w.AddComponent(op.Entity, op.Type)
	if err != nil {
		return StatusOf(err)
	}
	for _, fv := range op.Fields {
		if err = c.UpdateField(fv.Field, fv.Value, true); err != nil {
			return StatusOf(err)
		}
	}
	return protocol.StatusSuccess
}

func updateComponent(w *world.World, op protocol.Op) protocol.Status {
	c, status := component(w, op)
	if !status.Ok() {
		return status
	}
	if len(op.Fields) != 1 || !validField(c.ComponentType(), op.Fields[0]) {
		return protocol.StatusInvalidFieldType
	}
	return StatusOf(c.UpdateField(op.Fields[0].Field, op.Fields[0].Value, true))
}

func component(w *world.World, op protocol.Op) (*world.Component, protocol.Status) {
	if !w.HasEntity(op.Entity) {
		return nil, protocol.StatusEntityDoesntExist
	}
	c, ok := w.Component(op.Entity, op.Type)
	if !ok {
		if _, known := w.Schema().Lookup(op.Type); !known {
			return nil, protocol.StatusInvalidComponentType
		}
		return nil, protocol.StatusComponentDoesntExist
	}
	return c, protocol.StatusSuccess
}

func validField(ct *schema.ComponentType, fv protocol.FieldValue) bool {
	return ct.HasField(fv.Field) && ct.Field(fv.Field).Kind == fv.Value.Kind()
}

// StatusOf maps an error returned by the world onto a Status. Unknown
// errors map to StatusActivationFailure.
func StatusOf(err error) protocol.Status {
	switch {
	case err == nil:
		return protocol.StatusSuccess
	case errors.Is(err, world.ErrEntityExists):
		return protocol.StatusEntityAlreadyExists
	case errors.Is(err, world.ErrEntityNotFound):
		return protocol.StatusEntityDoesntExist
	case errors.Is(err, world.ErrComponentExists):
		return protocol.StatusComponentAlreadyExists
	case errors.Is(err, world.ErrComponentNotFound):
		return protocol.StatusComponentDoesntExist
	case errors.Is(err, world.ErrUnknownComponentType):
		return protocol.StatusInvalidComponentType
	case errors.Is(err, world.ErrInvalidFieldType):
		return protocol.StatusInvalidFieldType
	case errors.Is(err, world.ErrNotAuthoritative):
		return protocol.StatusNotAuthoritative
	case errors.Is(err, world.ErrDependenciesInactive):
		return protocol.StatusDependenciesInactive
	default:
		return protocol.StatusActivationFailure
	}
}
