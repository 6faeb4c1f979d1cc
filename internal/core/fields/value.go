package fields

import (
	"fmt"

	"github.com/zeusync/replica/internal/core/models"
)

// Value holds one typed field value, or nothing. The kind is fixed for the
// lifetime of the value; a value is set exactly when it carries a payload.
//
// The zero Value is an unset entity reference.
type Value struct {
	kind    Kind
	payload Payload
}

// Unset returns an absent value of kind k.
func Unset(k Kind) Value {
	if !k.Valid() {
		panic(fmt.Sprintf("fields: invalid kind %d", uint8(k)))
	}
	return Value{kind: k}
}

// Zero returns a set value holding the zero payload of kind k.
func Zero(k Kind) Value {
	return Value{kind: k, payload: zeroPayload(k)}
}

// Of returns a set value holding a copy of p.
func Of(p Payload) Value {
	if p == nil {
		panic("fields: nil payload")
	}
	return Value{kind: p.Kind(), payload: p.clone()}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsSet() bool {
	return v.payload != nil
}

// Payload returns the content of a set value, or nil.
// Slice payloads alias the value's storage and must not be modified.
func (v Value) Payload() Payload {
	return v.payload
}

// As returns the payload as P when the value is set and P matches its kind.
func As[P Payload](v Value) (P, bool) {
	p, ok := v.payload.(P)
	return p, ok
}

// EntityIDs returns the entities referenced by a set Entity or Entities value.
func (v Value) EntityIDs() []models.EntityID {
	switch p := v.payload.(type) {
	case Entity:
		return []models.EntityID{models.EntityID(p)}
	case Entities:
		return p
	default:
		return nil
	}
}

// Clear drops the payload, leaving the value unset. Owned buffers are released.
func (v *Value) Clear() {
	v.payload = nil
}

// Set replaces the payload. p must match the value's kind.
func (v *Value) Set(p Payload) {
	if p == nil {
		v.Clear()
		return
	}
	if p.Kind() != v.kind {
		panic(fmt.Sprintf("fields: cannot set %s payload on %s value", p.Kind(), v.kind))
	}
	v.payload = p.clone()
}

// Assign deep-copies src into v. Both must have the same kind. Assigning a
// value to itself leaves it unchanged.
func (v *Value) Assign(src Value) {
	if v.kind != src.kind {
		panic(fmt.Sprintf("fields: cannot assign %s value to %s value", src.kind, v.kind))
	}
	if src.payload == nil {
		v.payload = nil
		return
	}
	v.payload = src.payload.clone()
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := Value{kind: v.kind}
	if v.payload != nil {
		out.payload = v.payload.clone()
	}
	return out
}

// Equal reports structural equality. Two unset values are equal. Comparing
// values of different kinds is a caller bug.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		panic(fmt.Sprintf("fields: comparing %s value with %s value", a.kind, b.kind))
	}
	if a.payload == nil || b.payload == nil {
		return a.payload == nil && b.payload == nil
	}
	return a.payload.equal(b.payload)
}

func (v Value) String() string {
	if v.payload == nil {
		return v.kind.String() + "(unset)"
	}
	switch p := v.payload.(type) {
	case Bytes:
		return fmt.Sprintf("%s(%d bytes)", v.kind, len(p))
	case String:
		return fmt.Sprintf("%s(%q)", v.kind, string(p))
	default:
		return fmt.Sprintf("%s(%v)", v.kind, p)
	}
}
