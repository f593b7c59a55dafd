package core

import (
	"reflect"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/qcode"
	"github.com/mitchellh/hashstructure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Filter is a set of keyword lookups such as {"name__ne": "x", "age__gte": 18}.
type Filter map[string]any

type boolOp int

const (
	opLeaf boolOp = iota
	opAnd
	opOr
)

func (op boolOp) symbol() string {
	if op == opAnd {
		return "$and"
	}
	return "$or"
}

// Query is a node of a boolean filter expression: either a leaf holding a
// Filter or an AND/OR of child queries. Queries are immutable; And and Or
// return new nodes.
type Query struct {
	op       boolOp
	filter   Filter
	children []*Query
}

// Q returns a leaf query.
func Q(f Filter) *Query {
	return &Query{filter: f}
}

// And returns the conjunction of qs, composed left to right.
func And(qs ...*Query) *Query {
	return fold(opAnd, qs)
}

// Or returns the disjunction of qs, composed left to right.
func Or(qs ...*Query) *Query {
	return fold(opOr, qs)
}

func (q *Query) And(other *Query) *Query {
	return combine(opAnd, q, other)
}

func (q *Query) Or(other *Query) *Query {
	return combine(opOr, q, other)
}

// Empty reports whether q matches everything.
func (q *Query) Empty() bool {
	if q == nil {
		return true
	}
	if q.op == opLeaf {
		return len(q.filter) == 0
	}
	return len(q.children) == 0
}

func fold(op boolOp, qs []*Query) *Query {
	switch len(qs) {
	case 0:
		return Q(nil)
	case 1:
		return qs[0]
	}
	q := combine(op, qs[0], qs[1])
	for _, n := range qs[2:] {
		q = combine(op, q, n)
	}
	return q
}

// combine joins a and b under op. When either side already is an op node
// its children are spliced in and the result keeps equal children once.
// Otherwise a and b become the two children of a new node.
func combine(op boolOp, a, b *Query) *Query {
	if !a.is(op) && !b.is(op) {
		return &Query{op: op, children: []*Query{a, b}}
	}

	c := &Query{op: op}
	var hashes []uint64

	for _, n := range []*Query{a, b} {
		kids := []*Query{n}
		if n.is(op) {
			kids = n.children
		}
		for _, k := range kids {
			h, ok := k.hash()
			if c.has(k, h, ok, hashes) {
				continue
			}
			c.children = append(c.children, k)
			hashes = append(hashes, h)
		}
	}
	return c
}

func (q *Query) is(op boolOp) bool {
	return q != nil && q.op == op
}

func (q *Query) has(k *Query, h uint64, hashed bool, hashes []uint64) bool {
	for i, x := range q.children {
		if hashed && hashes[i] != h {
			continue
		}
		if reflect.DeepEqual(x, k) {
			return true
		}
	}
	return false
}

type hashNode struct {
	Op       int
	Filter   map[string]any
	Children []uint64
}

// hash returns a structural hash of q. ok is false when some value can not
// be hashed, in which case callers fall back to deep equality.
func (q *Query) hash() (uint64, bool) {
	if q == nil {
		return 0, false
	}
	n := hashNode{Op: int(q.op), Filter: q.filter}
	for _, c := range q.children {
		h, ok := c.hash()
		if !ok {
			return 0, false
		}
		n.Children = append(n.Children, h)
	}
	h, err := hashstructure.Hash(n, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, false
	}
	return h, true
}

// ToQuery compiles q against s into a filter document.
func (q *Query) ToQuery(s *Schema) (bson.M, error) {
	c, err := qcode.NewCompiler(s, 0)
	if err != nil {
		return nil, err
	}
	return compileQuery(c, q)
}

func compileQuery(c *qcode.Compiler, q *Query) (bson.M, error) {
	if q == nil {
		return nil, errs.New(errs.ErrInvalidArgsParams, "", "a query expression is required")
	}
	return q.compile(c)
}

func (q *Query) compile(c *qcode.Compiler) (bson.M, error) {
	if q.op == opLeaf {
		return c.Filter(q.filter)
	}

	list := make(bson.A, 0, len(q.children))
	for _, ch := range q.children {
		m, err := compileQuery(c, ch)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return bson.M{q.op.symbol(): list}, nil
}
