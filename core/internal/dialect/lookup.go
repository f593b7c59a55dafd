package dialect

import (
	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
)

// Lookup describes one $lookup join against the collection of From.
type Lookup struct {
	From         *sdata.Schema
	LocalField   string
	ForeignField string

	// As is the output field; defaults to the collection name of From.
	As string

	Unwind                     bool
	PreserveNullAndEmptyArrays bool
}

// Joiner is anything that yields lookups: a single Lookup or a
// LookupCombination.
type Joiner interface {
	Lookups() []*Lookup
}

// Alias is the field the joined documents are written to.
func (l *Lookup) Alias() string {
	if l.As != "" {
		return l.As
	}
	return l.From.Collection
}

func (l *Lookup) Lookups() []*Lookup {
	return []*Lookup{l}
}

// And combines l with other joins into one pipeline.
func (l *Lookup) And(others ...Joiner) *LookupCombination {
	return Combine(append([]Joiner{l}, others...)...)
}

// validate checks that the local field can be addressed on either side of
// the join.
func (l *Lookup) validate(main *sdata.Schema) error {
	if l.From == nil {
		return errs.New(errs.ErrInvalidArgsParams, l.LocalField, "lookup has no source schema")
	}
	if l.LocalField == sdata.IDField || main.Has(l.LocalField) || l.From.Has(l.LocalField) {
		return nil
	}

	seen := map[string]struct{}{}
	var valid []string
	for _, s := range []*sdata.Schema{main, l.From} {
		for _, n := range s.FieldNames() {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				valid = append(valid, n)
			}
		}
	}
	return errs.NotDeclared(l.LocalField, valid)
}

type lookupKey struct {
	from         *sdata.Schema
	localField   string
	foreignField string
	as           string
	unwind       bool
	preserve     bool
}

func (l *Lookup) key() lookupKey {
	return lookupKey{
		from:         l.From,
		localField:   l.LocalField,
		foreignField: l.ForeignField,
		as:           l.Alias(),
		unwind:       l.Unwind,
		preserve:     l.PreserveNullAndEmptyArrays,
	}
}

// LookupCombination is an ordered set of lookups sharing one pipeline.
// Equal lookups are kept once, at the position they were first added.
type LookupCombination struct {
	children []*Lookup
}

// Combine flattens joins into one combination, dropping duplicates.
func Combine(joins ...Joiner) *LookupCombination {
	c := &LookupCombination{}
	seen := map[lookupKey]struct{}{}

	for _, j := range joins {
		if j == nil {
			continue
		}
		for _, l := range j.Lookups() {
			if l == nil {
				continue
			}
			k := l.key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			c.children = append(c.children, l)
		}
	}
	return c
}

func (c *LookupCombination) Lookups() []*Lookup {
	return append([]*Lookup(nil), c.children...)
}

func (c *LookupCombination) And(others ...Joiner) *LookupCombination {
	return Combine(append([]Joiner{c}, others...)...)
}
