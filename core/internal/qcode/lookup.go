// Package qcode turns keyword style lookups (field__modifier__modifier)
// into MongoDB filter and update documents.
package qcode

import (
	"strings"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Separator splits a lookup key into its field and modifiers.
const Separator = "__"

// DefaultCacheSize is the number of parsed keys a Parser remembers.
const DefaultCacheSize = 2048

// LookupKey is one parsed filter key. Path holds the nested document
// segments and Ops the operator tokens, both in the order they appeared.
type LookupKey struct {
	Field string
	Path  []string
	Ops   []Op
}

// Key is the wire field name: the field followed by its dotted path.
func (k LookupKey) Key() string {
	if len(k.Path) == 0 {
		return k.Field
	}
	return k.Field + "." + strings.Join(k.Path, ".")
}

// Split tokenizes key without checking it against a schema.
func Split(key string) LookupKey {
	tokens := strings.Split(key, Separator)
	lk := LookupKey{Field: tokens[0]}

	for _, t := range tokens[1:] {
		if op, ok := ParseOp(t); ok {
			lk.Ops = append(lk.Ops, op)
		} else {
			lk.Path = append(lk.Path, t)
		}
	}
	return lk
}

// Parser splits lookup keys and checks the field against a schema. Parsed
// keys are cached; the returned LookupKey must not be modified.
type Parser struct {
	schema *sdata.Schema
	cache  *lru.TwoQueueCache[string, LookupKey]
}

func NewParser(s *sdata.Schema, cacheSize int) (*Parser, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	c, err := lru.New2Q[string, LookupKey](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Parser{schema: s, cache: c}, nil
}

func (p *Parser) Parse(key string) (LookupKey, error) {
	if lk, ok := p.cache.Get(key); ok {
		return lk, nil
	}

	lk := Split(key)
	if lk.Field == "" {
		return lk, errs.New(errs.ErrUnknownField, key, "empty field name")
	}
	for _, seg := range lk.Path {
		if seg == "" {
			return lk, errs.New(errs.ErrUnknownField, key, "empty path segment")
		}
	}
	if !p.schema.Has(lk.Field) {
		return lk, errs.NotDeclared(lk.Field, p.schema.FieldNames())
	}

	p.cache.Add(key, lk)
	return lk, nil
}
