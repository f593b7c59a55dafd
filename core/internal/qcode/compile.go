package qcode

import (
	"sort"
	"strings"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// SetSuffix marks an update key whose value goes to the $set payload.
const SetSuffix = Separator + "set"

// Compiler compiles keyword lookups for one schema.
type Compiler struct {
	schema *sdata.Schema
	parser *Parser
}

func NewCompiler(s *sdata.Schema, cacheSize int) (*Compiler, error) {
	p, err := NewParser(s, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Compiler{schema: s, parser: p}, nil
}

func (c *Compiler) Schema() *sdata.Schema {
	return c.schema
}

// Filter compiles keyword lookups into a filter document. Keys are visited
// in sorted order. When several keys resolve to the same wire field their
// operator documents are merged, later ones overwriting.
func (c *Compiler) Filter(kw map[string]any) (bson.M, error) {
	out := bson.M{}

	for _, key := range sortedKeys(kw) {
		lk, skip, err := c.lookup(key)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		for _, op := range lk.Ops {
			if op.Mutation() {
				return nil, errs.New(errs.ErrInvalidValue, key,
					"%s is only valid in updates", op)
			}
		}
		if err := c.compileKey(out, lk, kw[key]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update splits keyword arguments into a match filter and an update
// document. Keys ending in __set go to $set, keys using a mutation operator
// (inc) go to that operator, everything else is part of the filter. At
// least one __set key is required.
func (c *Compiler) Update(kw map[string]any) (filter, update bson.M, err error) {
	filter = bson.M{}
	update = bson.M{}
	set := bson.M{}

	for _, key := range sortedKeys(kw) {
		v := kw[key]

		if strings.HasSuffix(key, SetSuffix) {
			lk, skip, err := c.lookup(strings.TrimSuffix(key, SetSuffix))
			if err != nil {
				return nil, nil, err
			}
			if skip {
				continue
			}
			if len(lk.Ops) != 0 {
				return nil, nil, errs.New(errs.ErrInvalidValue, key,
					"operators can not be combined with set")
			}
			if v, err = c.value(lk, v); err != nil {
				return nil, nil, err
			}
			set[lk.Key()] = v
			continue
		}

		lk, skip, err := c.lookup(key)
		if err != nil {
			return nil, nil, err
		}
		if skip {
			continue
		}

		if hasMutation(lk.Ops) {
			if len(lk.Ops) != 1 {
				return nil, nil, errs.New(errs.ErrInvalidValue, key,
					"mutation operators can not be combined")
			}
			frag, err := Apply(lk.Ops[0], lk.Key(), v)
			if err != nil {
				return nil, nil, err
			}
			mergeFragment(update, frag)
			continue
		}

		if err := c.compileKey(filter, lk, v); err != nil {
			return nil, nil, err
		}
	}

	if len(set) == 0 {
		return nil, nil, &errs.Error{
			Kind: errs.ErrNoFieldsToUpdate,
			Msg:  "add the __set suffix to the fields being updated",
		}
	}
	update["$set"] = set
	return filter, update, nil
}

// Document checks a full document (insert or replace payload) against the
// schema: undeclared keys are dropped, declared ones coerced and validated.
func (c *Compiler) Document(doc bson.M) (bson.M, error) {
	return c.schema.Hydrate(doc)
}

// lookup parses key. skip is true for fields excluded from querying.
func (c *Compiler) lookup(key string) (lk LookupKey, skip bool, err error) {
	if lk, err = c.parser.Parse(key); err != nil {
		return lk, false, err
	}
	f, _ := c.schema.Field(lk.Field)
	return lk, f.Excluded, nil
}

func (c *Compiler) compileKey(out bson.M, lk LookupKey, v any) error {
	v, err := c.value(lk, v)
	if err != nil {
		return err
	}

	wk := lk.Key()
	if len(lk.Ops) == 0 {
		merge(out, wk, v)
		return nil
	}

	for _, op := range lk.Ops {
		frag, err := Apply(op, wk, v)
		if err != nil {
			return err
		}
		mergeFragment(out, frag)
	}
	return nil
}

// value prepares v for the operators of lk. Identifier values become
// object ids. Plain values and comparison operands of declared fields are
// coerced to the field's kind, list operators coerce every element. Nested
// paths, patterns and type checks are passed through untouched.
func (c *Compiler) value(lk LookupKey, v any) (any, error) {
	if lk.Field == sdata.IDField {
		if onlyOps(lk.Ops, OpExists, OpType) {
			return v, nil
		}
		return c.schema.CoerceID(v)
	}
	if len(lk.Path) != 0 {
		return v, nil
	}

	switch {
	case len(lk.Ops) == 0, onlyOps(lk.Ops, OpNe, OpGte, OpLte, OpGt, OpLt):
		return c.schema.Coerce(lk.Field, v)

	case onlyOps(lk.Ops, OpIn, OpNin, OpRange):
		list, ok := sdata.ToList(v)
		if !ok {
			return v, nil
		}
		out := make([]any, 0, len(list))
		for _, item := range list {
			cv, err := c.schema.Coerce(lk.Field, item)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	}
	return v, nil
}

func onlyOps(ops []Op, allowed ...Op) bool {
	if len(ops) == 0 {
		return false
	}
	for _, op := range ops {
		found := false
		for _, a := range allowed {
			if op == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasMutation(ops []Op) bool {
	for _, op := range ops {
		if op.Mutation() {
			return true
		}
	}
	return false
}

// mergeFragment merges every top level key of frag into out.
func mergeFragment(out, frag bson.M) {
	for k, v := range frag {
		merge(out, k, v)
	}
}

// merge sets out[key] = v, merging operator documents key by key when both
// sides are documents.
func merge(out bson.M, key string, v any) {
	nv, ok := v.(bson.M)
	if !ok {
		out[key] = v
		return
	}
	ov, ok := out[key].(bson.M)
	if !ok {
		out[key] = nv
		return
	}
	m := make(bson.M, len(ov)+len(nv))
	for k, x := range ov {
		m[k] = x
	}
	for k, x := range nv {
		m[k] = x
	}
	out[key] = m
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
