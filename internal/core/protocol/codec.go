package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/pkg/encoding"
	"github.com/zeusync/replica/pkg/generic"
)

var writers = generic.NewResetPool(
	func() *encoding.Writer { return encoding.NewWriter(make([]byte, 0, 256)) },
	func(w *encoding.Writer) { w.Reset() },
)

// Encode appends the wire form of op to w:
//
//	[u8 kind]                              every op
//	[u64 entity]                           all ops but NoOp
//	[u16 len][type id]                     component ops
//	[u16 field][value]                     UpdateComponent
//	[u16 count]([u16 field][value])...     AddComponent
//
// Values use the field codec. Integers are little-endian.
func (op Op) Encode(w *encoding.Writer) {
	w.Uint8(uint8(op.Kind))
	if op.Kind == OpNoOp {
		return
	}
	w.Uint64(uint64(op.Entity))
	if !op.Kind.targetsComponent() {
		return
	}
	w.String16(string(op.Type))

	switch op.Kind {
	case OpUpdateComponent:
		field, value, ok := op.Update()
		if !ok {
			panic(fmt.Sprintf("protocol: update op carries %d fields", len(op.Fields)))
		}
		w.Uint16(uint16(field))
		value.Encode(w)
	case OpAddComponent:
		if len(op.Fields) > math.MaxUint16 {
			panic("protocol: too many initial values")
		}
		w.Uint16(uint16(len(op.Fields)))
		for _, fv := range op.Fields {
			w.Uint16(uint16(fv.Field))
			fv.Value.Encode(w)
		}
	}
}

// MarshalOp returns the wire form of op.
func MarshalOp(op Op) []byte {
	w := writers.Get()
	defer writers.Put(w)
	op.Encode(w)
	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out
}

var _ encoding.Serializable = (*Op)(nil)

// Decode replaces op with the next op read from r.
func (op *Op) Decode(r *encoding.Reader) error {
	decoded, err := DecodeOp(r)
	if err != nil {
		return err
	}
	*op = decoded
	return nil
}

// DecodeOp reads one op from r. Errors wrap ErrUnknownOp or ErrMalformedOp.
func DecodeOp(r *encoding.Reader) (Op, error) {
	kind, err := r.Uint8()
	if err != nil {
		return Op{}, fmt.Errorf("%w: kind: %w", ErrMalformedOp, err)
	}
	op := Op{Kind: OpKind(kind)}
	if !op.Kind.Valid() {
		return Op{}, fmt.Errorf("%w: %d", ErrUnknownOp, kind)
	}
	if op.Kind == OpNoOp {
		return op, nil
	}

	entity, err := r.Uint64()
	if err != nil {
		return Op{}, fmt.Errorf("%w: %s entity: %w", ErrMalformedOp, op.Kind, err)
	}
	op.Entity = models.EntityID(entity)
	if !op.Kind.targetsComponent() {
		return op, nil
	}

	typeID, err := r.String16()
	if err != nil {
		return Op{}, fmt.Errorf("%w: %s type: %w", ErrMalformedOp, op.Kind, err)
	}
	op.Type = models.TypeID(typeID)

	switch op.Kind {
	case OpUpdateComponent:
		fv, err := decodeFieldValue(r)
		if err != nil {
			return Op{}, fmt.Errorf("%w: %s: %w", ErrMalformedOp, op.Kind, err)
		}
		op.Fields = []FieldValue{fv}
	case OpAddComponent:
		count, err := r.Uint16()
		if err != nil {
			return Op{}, fmt.Errorf("%w: %s count: %w", ErrMalformedOp, op.Kind, err)
		}
		// every entry takes at least four bytes
		if int(count)*4 > r.Remaining() {
			return Op{}, fmt.Errorf("%w: %s claims %d values in %d bytes", ErrMalformedOp, op.Kind, count, r.Remaining())
		}
		if count > 0 {
			op.Fields = make([]FieldValue, 0, count)
		}
		for i := 0; i < int(count); i++ {
			fv, err := decodeFieldValue(r)
			if err != nil {
				return Op{}, fmt.Errorf("%w: %s value %d: %w", ErrMalformedOp, op.Kind, i, err)
			}
			op.Fields = append(op.Fields, fv)
		}
	}
	return op, nil
}

func decodeFieldValue(r *encoding.Reader) (FieldValue, error) {
	field, err := r.Uint16()
	if err != nil {
		return FieldValue{}, err
	}
	value, err := fields.Decode(r)
	if err != nil {
		return FieldValue{}, err
	}
	return FieldValue{Field: schema.FieldID(field), Value: value}, nil
}

// UnmarshalOp decodes a message holding exactly one op.
func UnmarshalOp(data []byte) (Op, error) {
	var op Op
	if err := encoding.Unmarshal(data, &op); err != nil {
		if errors.Is(err, encoding.ErrTrailingBytes) {
			return Op{}, fmt.Errorf("%w: %w", ErrMalformedOp, err)
		}
		return Op{}, err
	}
	return op, nil
}
