package schema

import (
	"fmt"
	"io"
	"os"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a schema.
//
//	components:
//	  - id: transform
//	    fields:
//	      - {name: position, kind: vector3}
//	      - {name: parent, dependency: transform, optional: true}
//	  - id: squad
//	    fields:
//	      - {name: members, dependency: transform, array: true}
type Document struct {
	Components []ComponentDocument `yaml:"components"`
}

type ComponentDocument struct {
	ID     string          `yaml:"id"`
	Fields []FieldDocument `yaml:"fields"`
}

type FieldDocument struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind,omitempty"`
	Optional   bool   `yaml:"optional,omitempty"`
	Dependency string `yaml:"dependency,omitempty"`
	Array      bool   `yaml:"array,omitempty"`
}

// LoadYAML reads a schema document from r.
func LoadYAML(r io.Reader) (*Schema, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc.Build()
}

// LoadFile reads a schema document from path.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadYAML(f)
}

// Build registers every component of the document in a new schema and checks
// that dependency targets exist.
func (d Document) Build() (*Schema, error) {
	s := New()
	for _, cd := range d.Components {
		list := make([]Field, 0, len(cd.Fields))
		for _, fd := range cd.Fields {
			f, err := fd.field()
			if err != nil {
				return nil, fmt.Errorf("component %s: %w", cd.ID, err)
			}
			list = append(list, f)
		}
		ct, err := NewComponentType(models.TypeID(cd.ID), list...)
		if err != nil {
			return nil, err
		}
		if err = s.Register(ct); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (fd FieldDocument) field() (Field, error) {
	if fd.Dependency != "" {
		f := DependencyField(fd.Name, models.TypeID(fd.Dependency), fd.Array, fd.Optional)
		if fd.Kind != "" && fd.Kind != f.Kind.String() {
			return Field{}, fmt.Errorf("%w: dependency %s cannot be %s", ErrInvalidField, fd.Name, fd.Kind)
		}
		return f, nil
	}
	if fd.Array {
		return Field{}, fmt.Errorf("%w: %s: array is only valid on dependency fields", ErrInvalidField, fd.Name)
	}
	kind, err := fields.ParseKind(fd.Kind)
	if err != nil {
		return Field{}, fmt.Errorf("%w: %s: %v", ErrInvalidField, fd.Name, err)
	}
	return ValueField(fd.Name, kind, fd.Optional), nil
}

// Document converts the schema back to its YAML form.
func (s *Schema) Document() Document {
	var d Document
	for _, ct := range s.Types() {
		cd := ComponentDocument{ID: string(ct.id)}
		for _, f := range ct.fields {
			fd := FieldDocument{Name: f.Name, Optional: f.Optional}
			if f.IsDependency() {
				fd.Dependency = string(f.Dependency)
				fd.Array = f.Kind == fields.KindEntities
			} else {
				fd.Kind = f.Kind.String()
			}
			cd.Fields = append(cd.Fields, fd)
		}
		d.Components = append(d.Components, cd)
	}
	return d
}
