package protocol

import (
	"fmt"
	"strings"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/schema"
)

// OpKind selects what an Op does to a world.
type OpKind uint8

const (
	OpNoOp OpKind = iota
	OpAddEntity
	OpRemoveEntity
	OpAddComponent
	OpUpdateComponent
	OpActivateComponent
	OpDeactivateComponent
	OpDelegateComponent
	OpUndelegateComponent
	OpRemoveComponent
	opKindCount
)

var opNames = [opKindCount]string{
	OpNoOp:                "noop",
	OpAddEntity:           "add_entity",
	OpRemoveEntity:        "remove_entity",
	OpAddComponent:        "add_component",
	OpUpdateComponent:     "update_component",
	OpActivateComponent:   "activate_component",
	OpDeactivateComponent: "deactivate_component",
	OpDelegateComponent:   "delegate_component",
	OpUndelegateComponent: "undelegate_component",
	OpRemoveComponent:     "remove_component",
}

func (k OpKind) Valid() bool {
	return k < opKindCount
}

func (k OpKind) String() string {
	if k.Valid() {
		return opNames[k]
	}
	return fmt.Sprintf("op(%d)", uint8(k))
}

// targetsComponent reports whether ops of kind k carry a component type.
func (k OpKind) targetsComponent() bool {
	return k >= OpAddComponent && k < opKindCount
}

// FieldValue pairs a field index with a value.
type FieldValue struct {
	Field schema.FieldID
	Value fields.Value
}

// Op is one mutation of a world, as sent from the server to replicas and
// from authoritative replicas back to the server.
type Op struct {
	Kind   OpKind
	Entity models.EntityID
	// Type is set for component ops.
	Type models.TypeID
	// Fields holds the changed field of an UpdateComponent op (exactly one
	// entry) or the initial values of an AddComponent op.
	Fields []FieldValue
}

func NoOp() Op {
	return Op{Kind: OpNoOp}
}

func AddEntity(id models.EntityID) Op {
	return Op{Kind: OpAddEntity, Entity: id}
}

func RemoveEntity(id models.EntityID) Op {
	return Op{Kind: OpRemoveEntity, Entity: id}
}

// AddComponent adds a component, optionally overriding field defaults.
func AddComponent(id models.EntityID, typeID models.TypeID, values ...FieldValue) Op {
	return Op{Kind: OpAddComponent, Entity: id, Type: typeID, Fields: values}
}

func UpdateComponent(id models.EntityID, typeID models.TypeID, field schema.FieldID, value fields.Value) Op {
	return Op{
		Kind:   OpUpdateComponent,
		Entity: id,
		Type:   typeID,
		Fields: []FieldValue{{Field: field, Value: value}},
	}
}

func ActivateComponent(id models.EntityID, typeID models.TypeID) Op {
	return Op{Kind: OpActivateComponent, Entity: id, Type: typeID}
}

func DeactivateComponent(id models.EntityID, typeID models.TypeID) Op {
	return Op{Kind: OpDeactivateComponent, Entity: id, Type: typeID}
}

func DelegateComponent(id models.EntityID, typeID models.TypeID) Op {
	return Op{Kind: OpDelegateComponent, Entity: id, Type: typeID}
}

func UndelegateComponent(id models.EntityID, typeID models.TypeID) Op {
	return Op{Kind: OpUndelegateComponent, Entity: id, Type: typeID}
}

func RemoveComponent(id models.EntityID, typeID models.TypeID) Op {
	return Op{Kind: OpRemoveComponent, Entity: id, Type: typeID}
}

// Key identifies the component a component op targets.
func (op Op) Key() models.Key {
	return models.Key{Entity: op.Entity, Type: op.Type}
}

// Update returns the field and value of an UpdateComponent op.
func (op Op) Update() (schema.FieldID, fields.Value, bool) {
	if op.Kind != OpUpdateComponent || len(op.Fields) != 1 {
		return 0, fields.Value{}, false
	}
	return op.Fields[0].Field, op.Fields[0].Value, true
}

func (op Op) String() string {
	var b strings.Builder
	b.WriteString(op.Kind.String())
	switch {
	case op.Kind == OpNoOp:
	case op.Kind.targetsComponent():
		fmt.Fprintf(&b, " %s", op.Key())
	default:
		fmt.Fprintf(&b, " %d", op.Entity)
	}
	for _, fv := range op.Fields {
		fmt.Fprintf(&b, " #%d=%s", fv.Field, fv.Value)
	}
	return b.String()
}
