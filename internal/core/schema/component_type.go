package schema

import (
	"fmt"

	"github.com/zeusync/replica/internal/core/models"
)

// ComponentType is an immutable, ordered set of fields identified by a TypeID.
type ComponentType struct {
	id      models.TypeID
	fields  []Field
	byName  map[string]FieldID
	hasDeps bool
}

// NewComponentType copies fieldList into a new component type.
func NewComponentType(id models.TypeID, fieldList ...Field) (*ComponentType, error) {
	if id == "" {
		return nil, ErrEmptyTypeID
	}
	if len(id) > maxTypeIDLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrTypeIDTooLong, len(id))
	}
	if len(fieldList) > maxFields {
		return nil, fmt.Errorf("%w: %s declares %d fields", ErrTooManyFields, id, len(fieldList))
	}

	ct := &ComponentType{
		id:     id,
		fields: make([]Field, len(fieldList)),
		byName: make(map[string]FieldID, len(fieldList)),
	}
	copy(ct.fields, fieldList)

	for i, f := range ct.fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: %s field #%d", ErrInvalidField, id, i)
		}
		if !f.Kind.Valid() {
			return nil, fmt.Errorf("%w: %s.%s has kind %s", ErrInvalidField, id, f.Name, f.Kind)
		}
		if f.IsDependency() && !f.Kind.IsReference() {
			return nil, fmt.Errorf("%w: dependency %s.%s must hold entity ids, not %s", ErrInvalidField, id, f.Name, f.Kind)
		}
		if _, dup := ct.byName[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, id, f.Name)
		}
		ct.byName[f.Name] = FieldID(i)
		ct.hasDeps = ct.hasDeps || f.IsDependency()
	}

	return ct, nil
}

// MustComponentType is NewComponentType for static declarations.
func MustComponentType(id models.TypeID, fieldList ...Field) *ComponentType {
	ct, err := NewComponentType(id, fieldList...)
	if err != nil {
		panic(err)
	}
	return ct
}

func (ct *ComponentType) ID() models.TypeID {
	return ct.id
}

func (ct *ComponentType) NumFields() int {
	return len(ct.fields)
}

// Field returns the field at id. An out of range id is a caller bug.
func (ct *ComponentType) Field(id FieldID) Field {
	if int(id) >= len(ct.fields) {
		panic(fmt.Sprintf("schema: field %d out of range for %s (%d fields)", id, ct.id, len(ct.fields)))
	}
	return ct.fields[id]
}

// HasField reports whether id addresses a field of this type.
func (ct *ComponentType) HasField(id FieldID) bool {
	return int(id) < len(ct.fields)
}

// Fields returns a copy of the field list.
func (ct *ComponentType) Fields() []Field {
	out := make([]Field, len(ct.fields))
	copy(out, ct.fields)
	return out
}

func (ct *ComponentType) FieldByName(name string) (FieldID, bool) {
	id, ok := ct.byName[name]
	return id, ok
}

// HasDependencies reports whether any field is a dependency field.
func (ct *ComponentType) HasDependencies() bool {
	return ct.hasDeps
}
