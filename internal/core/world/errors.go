package world

import "errors"

var (
	ErrEntityExists         = errors.New("entity already exists")
	ErrEntityNotFound       = errors.New("entity not found")
	ErrUnknownComponentType = errors.New("unknown component type")
	ErrComponentExists      = errors.New("component already exists")
	ErrComponentNotFound    = errors.New("component not found")
	ErrInvalidFieldType     = errors.New("invalid field type")
	ErrNotAuthoritative     = errors.New("not authoritative")
	ErrDependenciesInactive = errors.New("dependencies inactive")
	ErrActivationFailure    = errors.New("activation failure")
	ErrCascadeLimit         = errors.New("cascade step limit exceeded")
	ErrDependencyCycle      = errors.New("dependency cycle")
	ErrSystemExists         = errors.New("system already registered")
)
