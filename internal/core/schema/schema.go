package schema

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/zeusync/replica/internal/core/models"
)

// Schema is an insert-only registry of component types.
type Schema struct {
	types map[models.TypeID]*ComponentType
	order []models.TypeID
}

func New() *Schema {
	return &Schema{types: make(map[models.TypeID]*ComponentType)}
}

// Register adds ct. Registering an id twice fails and keeps the first type.
func (s *Schema) Register(ct *ComponentType) error {
	if _, exists := s.types[ct.id]; exists {
		return fmt.Errorf("%w: %s", ErrTypeExists, ct.id)
	}
	s.types[ct.id] = ct
	s.order = append(s.order, ct.id)
	return nil
}

func (s *Schema) Lookup(id models.TypeID) (*ComponentType, bool) {
	ct, ok := s.types[id]
	return ct, ok
}

// Types returns the registered types in registration order.
func (s *Schema) Types() []*ComponentType {
	out := make([]*ComponentType, len(s.order))
	for i, id := range s.order {
		out[i] = s.types[id]
	}
	return out
}

func (s *Schema) Len() int {
	return len(s.order)
}

// Validate reports every dependency field whose target type is not registered.
func (s *Schema) Validate() error {
	var errs []error
	for _, id := range s.order {
		for _, f := range s.types[id].fields {
			if !f.IsDependency() {
				continue
			}
			if _, ok := s.types[f.Dependency]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownTarget, id, f.Name, f.Dependency))
			}
		}
	}
	return errors.Join(errs...)
}

// Fingerprint hashes the registered types, their order and every field
// declaration. Replicas exchanging ops must agree on it.
func (s *Schema) Fingerprint() uint64 {
	d := xxhash.New()
	for _, id := range s.order {
		_, _ = d.WriteString(string(id))
		_, _ = d.Write([]byte{0})
		for _, f := range s.types[id].fields {
			_, _ = d.WriteString(f.Name)
			_, _ = d.Write([]byte{0, byte(f.Kind), boolByte(f.Optional)})
			_, _ = d.WriteString(string(f.Dependency))
			_, _ = d.Write([]byte{0})
		}
		_, _ = d.WriteString(strconv.Itoa(len(s.types[id].fields)))
		_, _ = d.Write([]byte{1})
	}
	return d.Sum64()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
