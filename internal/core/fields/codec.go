package fields

import (
	"errors"
	"fmt"

	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/pkg/encoding"
)

var ErrUnknownKind = errors.New("unknown field kind")

var _ encoding.Serializable = (*Value)(nil)

// Encode appends the wire form of v:
//
//	[u8 kind][u8 isSet][payload, only when set]
//
// Payloads are fixed width except Entities ([u32 count][count x u64]) and
// String/Bytes ([u32 len][len bytes]). All integers are little-endian.
func (v Value) Encode(w *encoding.Writer) {
	w.Uint8(uint8(v.kind))
	w.Bool(v.payload != nil)
	if v.payload != nil {
		v.payload.encode(w)
	}
}

// Marshal returns the wire form of v.
func Marshal(v Value) []byte {
	return encoding.Marshal(&v)
}

// Decode reads one value from r. On failure no value is returned and r keeps
// whatever it consumed up to the failing read.
func Decode(r *encoding.Reader) (Value, error) {
	tag, err := r.Uint8()
	if err != nil {
		return Value{}, err
	}
	kind := Kind(tag)
	if !kind.Valid() {
		return Value{}, fmt.Errorf("%w: tag %d", ErrUnknownKind, tag)
	}
	set, err := r.Bool()
	if err != nil {
		return Value{}, err
	}
	if !set {
		return Unset(kind), nil
	}
	p, err := decodePayload(kind, r)
	if err != nil {
		return Value{}, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return Value{kind: kind, payload: p}, nil
}

// Decode replaces v with the next value read from r. v is left untouched on
// failure.
func (v *Value) Decode(r *encoding.Reader) error {
	decoded, err := Decode(r)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Unmarshal decodes one value from the start of data and reports how many
// bytes were consumed.
func Unmarshal(data []byte) (Value, int, error) {
	r := encoding.NewReader(data)
	v, err := Decode(r)
	return v, r.Offset(), err
}

func decodePayload(kind Kind, r *encoding.Reader) (Payload, error) {
	switch kind {
	case KindEntity:
		id, err := r.Uint64()
		return Entity(id), err
	case KindEntities:
		n, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		if uint64(n)*8 > uint64(r.Remaining()) {
			return nil, fmt.Errorf("%w: %d entity ids need %d bytes, have %d",
				encoding.ErrShortBuffer, n, uint64(n)*8, r.Remaining())
		}
		ids := make(Entities, n)
		for i := range ids {
			id, err := r.Uint64()
			if err != nil {
				return nil, err
			}
			ids[i] = models.EntityID(id)
		}
		return ids, nil
	case KindFloat:
		f, err := r.Float32()
		return Float(f), err
	case KindBool:
		b, err := r.Bool()
		return Bool(b), err
	case KindInt:
		i, err := r.Int32()
		return Int(i), err
	case KindString:
		b, err := r.Bytes32()
		if err != nil {
			return nil, err
		}
		return String(b), nil
	case KindVector2:
		var v Vector2
		if err := readFloats(r, v[:]); err != nil {
			return nil, err
		}
		return v, nil
	case KindVector3:
		var v Vector3
		if err := readFloats(r, v[:]); err != nil {
			return nil, err
		}
		return v, nil
	case KindVector4:
		var v Vector4
		if err := readFloats(r, v[:]); err != nil {
			return nil, err
		}
		return v, nil
	case KindBytes:
		b, err := r.Bytes32()
		if err != nil {
			return nil, err
		}
		return Bytes(b), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
}

func readFloats(r *encoding.Reader, dst []float32) error {
	for i := range dst {
		f, err := r.Float32()
		if err != nil {
			return err
		}
		dst[i] = f
	}
	return nil
}
