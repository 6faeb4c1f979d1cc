package schema

import (
	"errors"
	"math"
)

const (
	maxFields = math.MaxUint16
	// type ids travel behind a u16 length prefix
	maxTypeIDLen = math.MaxUint16
)

var (
	ErrTypeExists      = errors.New("component type already registered")
	ErrEmptyTypeID     = errors.New("component type id is empty")
	ErrTypeIDTooLong   = errors.New("component type id is too long")
	ErrInvalidField    = errors.New("invalid field")
	ErrDuplicateField  = errors.New("duplicate field name")
	ErrTooManyFields   = errors.New("too many fields")
	ErrUnknownTarget   = errors.New("dependency targets an unregistered type")
	ErrInvalidDocument = errors.New("invalid schema document")
)
