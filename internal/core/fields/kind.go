package fields

import "fmt"

// Kind is the type tag of a Value. A value's kind is fixed at construction.
type Kind uint8

const (
	KindEntity Kind = iota
	KindEntities
	KindFloat
	KindBool
	KindInt
	KindString
	KindVector2
	KindVector3
	KindVector4
	KindBytes

	kindCount
)

var kindNames = [kindCount]string{
	KindEntity:   "entity",
	KindEntities: "entity_array",
	KindFloat:    "float",
	KindBool:     "bool",
	KindInt:      "int",
	KindString:   "string",
	KindVector2:  "vector2",
	KindVector3:  "vector3",
	KindVector4:  "vector4",
	KindBytes:    "bytes",
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k < kindCount
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// IsReference reports whether values of this kind hold entity ids.
func (k Kind) IsReference() bool {
	return k == KindEntity || k == KindEntities
}

// ParseKind returns the kind with the given name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}
