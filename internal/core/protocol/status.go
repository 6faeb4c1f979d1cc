package protocol

import "fmt"

// Status is the outcome of applying one op to a world.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusEntityAlreadyExists
	StatusEntityDoesntExist
	StatusComponentAlreadyExists
	StatusComponentDoesntExist
	StatusInvalidComponentType
	StatusInvalidFieldType
	StatusNotAuthoritative
	StatusDependenciesInactive
	StatusActivationFailure
	// StatusUnknownOp answers an op kind the applier does not know.
	StatusUnknownOp
)

var statusNames = [...]string{
	StatusSuccess:                "success",
	StatusEntityAlreadyExists:    "entity_already_exists",
	StatusEntityDoesntExist:      "entity_doesnt_exist",
	StatusComponentAlreadyExists: "component_already_exists",
	StatusComponentDoesntExist:   "component_doesnt_exist",
	StatusInvalidComponentType:   "invalid_component_type",
	StatusInvalidFieldType:       "invalid_field_type",
	StatusNotAuthoritative:       "not_authoritative",
	StatusDependenciesInactive:   "dependencies_inactive",
	StatusActivationFailure:      "activation_failure",
	StatusUnknownOp:              "unknown_op",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Ok reports whether the op was applied.
func (s Status) Ok() bool {
	return s == StatusSuccess
}
