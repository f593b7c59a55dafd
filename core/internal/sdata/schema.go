// Package sdata holds the declared shape of a collection: the field table
// each lookup key is resolved against and the coercion rules applied to
// values before they reach the wire.
package sdata

import (
	"fmt"
	"sort"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/gobuffalo/flect"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// IDField is the identifier field every document carries.
const IDField = "_id"

// FieldSpec is one declared attribute of a schema.
type FieldSpec struct {
	Name string `yaml:"name" mapstructure:"name"`
	Kind Kind   `yaml:"type" mapstructure:"type"`

	// Validate is a go-playground/validator tag applied after coercion,
	// for example "required,min=1".
	Validate string `yaml:"validate" mapstructure:"validate"`

	Identifier bool `yaml:"-" mapstructure:"-"`

	// Excluded fields are accepted in filters but dropped before compilation.
	Excluded bool `yaml:"exclude_query" mapstructure:"exclude_query"`
}

// Schema is the field table for one collection. It is immutable once built.
type Schema struct {
	Name       string
	Collection string

	fields []FieldSpec
	byName map[string]int
	id     FieldSpec
}

// New builds a schema. When collection is empty it is derived from the
// schema name (Ticket -> ticket, ProductImage -> product_image).
func New(name, collection string, fields ...FieldSpec) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema: name is required")
	}
	if collection == "" {
		collection = flect.Underscore(name)
	}

	s := &Schema{
		Name:       name,
		Collection: collection,
		byName:     make(map[string]int, len(fields)),
		id:         FieldSpec{Name: IDField, Kind: KindObjectID, Identifier: true},
	}

	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema %s: field with empty name", name)
		}
		if err := checkValidateTag(f); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}

		if f.Name == IDField {
			f.Identifier = true
			if f.Kind == KindAny {
				f.Kind = KindObjectID
			}
			s.id = f
			continue
		}
		if f.Identifier {
			return nil, fmt.Errorf("schema %s: only %s can be the identifier, got %s",
				name, IDField, f.Name)
		}
		if _, ok := s.byName[f.Name]; ok {
			return nil, fmt.Errorf("schema %s: duplicate field %s", name, f.Name)
		}
		s.byName[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustNew is like New but panics on error. Meant for package level schema
// declarations.
func MustNew(name, collection string, fields ...FieldSpec) *Schema {
	s, err := New(name, collection, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field returns the spec for name. The identifier field is always found.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	if name == IDField {
		return s.id, true
	}
	i, ok := s.byName[name]
	if !ok {
		return FieldSpec{}, false
	}
	return s.fields[i], true
}

// Fields returns the declared fields in declaration order, identifier excluded.
func (s *Schema) Fields() []FieldSpec {
	return append([]FieldSpec(nil), s.fields...)
}

// FieldNames returns the declared field names, sorted.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

// ID returns the identifier field spec.
func (s *Schema) ID() FieldSpec {
	return s.id
}

// Has reports whether name is declared or is the identifier.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// Coerce runs v through the declared type of field name and then through
// the field's validate tag.
func (s *Schema) Coerce(name string, v any) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, errs.NotDeclared(name, s.FieldNames())
	}
	if f.Identifier {
		return s.CoerceID(v)
	}
	return f.coerce(v)
}

// CoerceID converts a value, or every element of a list of values, to the
// identifier's native type.
func (s *Schema) CoerceID(v any) (any, error) {
	if list, ok := toList(v); ok {
		out := make([]any, 0, len(list))
		for _, item := range list {
			cv, err := s.id.coerce(item)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	}
	return s.id.coerce(v)
}

// Hydrate keeps the identifier and every declared field of doc, coercing
// each one. Undeclared keys are dropped.
func (s *Schema) Hydrate(doc bson.M) (bson.M, error) {
	out := make(bson.M, len(doc))

	if id, ok := doc[IDField]; ok {
		cv, err := s.id.coerce(id)
		if err != nil {
			return nil, err
		}
		out[IDField] = cv
	}

	for _, f := range s.fields {
		v, ok := doc[f.Name]
		if !ok {
			if f.required() {
				return nil, errs.New(errs.ErrValidation, f.Name, "field required")
			}
			continue
		}
		cv, err := f.coerce(v)
		if err != nil {
			return nil, err
		}
		out[f.Name] = cv
	}
	return out, nil
}

func (f FieldSpec) coerce(v any) (any, error) {
	cv, err := f.Kind.Coerce(v)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, f.Name, err)
	}
	if err := f.validate(cv); err != nil {
		return nil, err
	}
	return cv, nil
}
