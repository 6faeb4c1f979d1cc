package fields

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/pkg/encoding"
)

// Payload is the content of a set Value. The set of payload types is closed:
// only the types declared in this file implement it.
type Payload interface {
	Kind() Kind

	clone() Payload
	equal(other Payload) bool
	encode(w *encoding.Writer)
}

type (
	// Entity references a single entity.
	Entity models.EntityID
	// Entities references an ordered list of entities.
	Entities []models.EntityID
	Float    float32
	Bool     bool
	Int      int32
	String   string
	Vector2  mgl32.Vec2
	Vector3  mgl32.Vec3
	Vector4  mgl32.Vec4
	Bytes    []byte
)

var (
	_ Payload = Entity(0)
	_ Payload = Entities(nil)
	_ Payload = Float(0)
	_ Payload = Bool(false)
	_ Payload = Int(0)
	_ Payload = String("")
	_ Payload = Vector2{}
	_ Payload = Vector3{}
	_ Payload = Vector4{}
	_ Payload = Bytes(nil)
)

func (Entity) Kind() Kind   { return KindEntity }
func (Entities) Kind() Kind { return KindEntities }
func (Float) Kind() Kind    { return KindFloat }
func (Bool) Kind() Kind     { return KindBool }
func (Int) Kind() Kind      { return KindInt }
func (String) Kind() Kind   { return KindString }
func (Vector2) Kind() Kind  { return KindVector2 }
func (Vector3) Kind() Kind  { return KindVector3 }
func (Vector4) Kind() Kind  { return KindVector4 }
func (Bytes) Kind() Kind    { return KindBytes }

func (p Entity) clone() Payload { return p }
func (p Entities) clone() Payload {
	out := make(Entities, len(p))
	copy(out, p)
	return out
}
func (p Float) clone() Payload   { return p }
func (p Bool) clone() Payload    { return p }
func (p Int) clone() Payload     { return p }
func (p String) clone() Payload  { return p }
func (p Vector2) clone() Payload { return p }
func (p Vector3) clone() Payload { return p }
func (p Vector4) clone() Payload { return p }
func (p Bytes) clone() Payload {
	out := make(Bytes, len(p))
	copy(out, p)
	return out
}

func (p Entity) equal(o Payload) bool { return p == o.(Entity) }
func (p Entities) equal(o Payload) bool {
	q := o.(Entities)
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Floats compare by bit pattern so that NaN payloads survive a round trip.
func (p Float) equal(o Payload) bool {
	return math.Float32bits(float32(p)) == math.Float32bits(float32(o.(Float)))
}
func (p Bool) equal(o Payload) bool    { return p == o.(Bool) }
func (p Int) equal(o Payload) bool     { return p == o.(Int) }
func (p String) equal(o Payload) bool  { return p == o.(String) }
func (p Vector2) equal(o Payload) bool {
	q := o.(Vector2)
	return floatsEqual(p[:], q[:])
}
func (p Vector3) equal(o Payload) bool {
	q := o.(Vector3)
	return floatsEqual(p[:], q[:])
}
func (p Vector4) equal(o Payload) bool {
	q := o.(Vector4)
	return floatsEqual(p[:], q[:])
}
func (p Bytes) equal(o Payload) bool   { return bytes.Equal(p, o.(Bytes)) }

func floatsEqual(a, b []float32) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func (p Entity) encode(w *encoding.Writer) { w.Uint64(uint64(p)) }
func (p Entities) encode(w *encoding.Writer) {
	w.Uint32(uint32(len(p)))
	for _, id := range p {
		w.Uint64(uint64(id))
	}
}
func (p Float) encode(w *encoding.Writer)  { w.Float32(float32(p)) }
func (p Bool) encode(w *encoding.Writer)   { w.Bool(bool(p)) }
func (p Int) encode(w *encoding.Writer)    { w.Int32(int32(p)) }
func (p String) encode(w *encoding.Writer) { w.Bytes32([]byte(p)) }
func (p Vector2) encode(w *encoding.Writer) {
	for _, f := range p {
		w.Float32(f)
	}
}
func (p Vector3) encode(w *encoding.Writer) {
	for _, f := range p {
		w.Float32(f)
	}
}
func (p Vector4) encode(w *encoding.Writer) {
	for _, f := range p {
		w.Float32(f)
	}
}
func (p Bytes) encode(w *encoding.Writer) { w.Bytes32(p) }

// Vec converts to the mathgl vector type.
func (p Vector2) Vec() mgl32.Vec2 { return mgl32.Vec2(p) }
func (p Vector3) Vec() mgl32.Vec3 { return mgl32.Vec3(p) }
func (p Vector4) Vec() mgl32.Vec4 { return mgl32.Vec4(p) }

func zeroPayload(k Kind) Payload {
	switch k {
	case KindEntity:
		return Entity(0)
	case KindEntities:
		return Entities{}
	case KindFloat:
		return Float(0)
	case KindBool:
		return Bool(false)
	case KindInt:
		return Int(0)
	case KindString:
		return String("")
	case KindVector2:
		return Vector2{}
	case KindVector3:
		return Vector3{}
	case KindVector4:
		return Vector4{}
	case KindBytes:
		return Bytes{}
	default:
		panic(fmt.Sprintf("fields: invalid kind %d", uint8(k)))
	}
}
