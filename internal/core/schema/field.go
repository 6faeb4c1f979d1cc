package schema

import (
	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
)

// FieldID is the index of a field within its component type.
type FieldID uint16

// Field describes one named, typed slot of a component type.
type Field struct {
	Name     string
	Kind     fields.Kind
	Optional bool
	// Dependency names the component type that the referenced entities must
	// carry, in an active state, for the owning component to activate. Empty
	// for plain value fields.
	Dependency models.TypeID
}

// ValueField declares a plain field.
func ValueField(name string, kind fields.Kind, optional bool) Field {
	return Field{Name: name, Kind: kind, Optional: optional}
}

// DependencyField declares a field referencing one entity (or, with isArray,
// a list of entities) whose target component must be active.
func DependencyField(name string, target models.TypeID, isArray, optional bool) Field {
	kind := fields.KindEntity
	if isArray {
		kind = fields.KindEntities
	}
	return Field{Name: name, Kind: kind, Optional: optional, Dependency: target}
}

// IsDependency reports whether the field references another component.
func (f Field) IsDependency() bool {
	return f.Dependency != ""
}

// Default returns the initial value of the field: the zero value for required
// fields, unset for optional ones.
func (f Field) Default() fields.Value {
	if f.Optional {
		return fields.Unset(f.Kind)
	}
	return fields.Zero(f.Kind)
}
