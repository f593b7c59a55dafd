package core

import (
	"github.com/dosco/mongodoc/core/internal/sdata"
)

// Schema is the declared field table of a collection.
type Schema = sdata.Schema

// Field declares one schema attribute.
type Field = sdata.FieldSpec

// Kind is the declared type of a field.
type Kind = sdata.Kind

const (
	KindAny      = sdata.KindAny
	KindString   = sdata.KindString
	KindInt      = sdata.KindInt
	KindFloat    = sdata.KindFloat
	KindBool     = sdata.KindBool
	KindObjectID = sdata.KindObjectID
	KindTime     = sdata.KindTime
	KindMap      = sdata.KindMap
	KindList     = sdata.KindList
)

// IDField is the identifier every document carries.
const IDField = sdata.IDField

// NewSchema declares a schema. An empty collection name is derived from
// name.
func NewSchema(name, collection string, fields ...Field) (*Schema, error) {
	return sdata.New(name, collection, fields...)
}

// MustSchema is NewSchema for package level declarations; it panics on
// error.
func MustSchema(name, collection string, fields ...Field) *Schema {
	return sdata.MustNew(name, collection, fields...)
}

// ParseKind maps a type name such as "string" or "objectid" to a Kind.
func ParseKind(s string) (Kind, error) {
	return sdata.ParseKind(s)
}
