package qcode

import (
	"fmt"
	"reflect"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Op is a recognized operator token in a lookup key.
type Op int

const (
	OpNone Op = iota
	OpIn
	OpNin
	OpNe
	OpRegex
	OpIRegex
	OpRegexNe
	OpStartsWith
	OpEndsWith
	OpNotStartsWith
	OpNotEndsWith
	OpExists
	OpType
	OpGte
	OpLte
	OpGt
	OpLt
	OpRange
	OpInc
)

var opTokens = map[string]Op{
	"in":             OpIn,
	"nin":            OpNin,
	"ne":             OpNe,
	"regex":          OpRegex,
	"iregex":         OpIRegex,
	"regex_ne":       OpRegexNe,
	"startswith":     OpStartsWith,
	"endswith":       OpEndsWith,
	"not_startswith": OpNotStartsWith,
	"not_endswith":   OpNotEndsWith,
	"exists":         OpExists,
	"type":           OpType,
	"gte":            OpGte,
	"lte":            OpLte,
	"gt":             OpGt,
	"lt":             OpLt,
	"range":          OpRange,
	"inc":            OpInc,
}

var opNames = func() map[Op]string {
	m := make(map[Op]string, len(opTokens))
	for k, v := range opTokens {
		m[v] = k
	}
	return m
}()

// ParseOp classifies a lookup key token.
func ParseOp(tok string) (Op, bool) {
	op, ok := opTokens[tok]
	return op, ok
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Mutation reports whether the operator produces an update fragment rather
// than a filter fragment.
func (op Op) Mutation() bool {
	return op == OpInc
}

type opFunc func(field string, v any) (bson.M, error)

var registry = map[Op]opFunc{
	OpIn:            listOp("$in"),
	OpNin:           listOp("$nin"),
	OpNe:            simpleOp("$ne"),
	OpRegex:         simpleOp("$regex"),
	OpIRegex:        iregexOp,
	OpRegexNe:       notRegexOp("", ""),
	OpStartsWith:    regexOp("^", ""),
	OpEndsWith:      regexOp("", "$"),
	OpNotStartsWith: notRegexOp("^", ""),
	OpNotEndsWith:   notRegexOp("", "$"),
	OpExists:        existsOp,
	OpType:          simpleOp("$type"),
	OpGte:           simpleOp("$gte"),
	OpLte:           simpleOp("$lte"),
	OpGt:            simpleOp("$gt"),
	OpLt:            simpleOp("$lt"),
	OpRange:         rangeOp,
	OpInc:           incOp,
}

// Apply returns the wire fragment for op applied to field. Comparison
// operators return {field: {"$op": v}}, mutation operators return
// {"$op": {field: v}}.
func Apply(op Op, field string, v any) (bson.M, error) {
	fn, ok := registry[op]
	if !ok {
		return nil, errs.New(errs.ErrInvalidArgsParams, field, "unknown operator %s", op)
	}
	return fn(field, v)
}

func simpleOp(sym string) opFunc {
	return func(field string, v any) (bson.M, error) {
		return bson.M{field: bson.M{sym: v}}, nil
	}
}

func listOp(sym string) opFunc {
	return func(field string, v any) (bson.M, error) {
		list, ok := sdata.ToList(v)
		if !ok {
			return nil, errs.New(errs.ErrInvalidValue, field,
				"%s expects a list, got %T", sym, v)
		}
		return bson.M{field: bson.M{sym: list}}, nil
	}
}

func regexOp(prefix, suffix string) opFunc {
	return func(field string, v any) (bson.M, error) {
		s, err := pattern(field, v)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$regex": prefix + s + suffix}}, nil
	}
}

func notRegexOp(prefix, suffix string) opFunc {
	return func(field string, v any) (bson.M, error) {
		s, err := pattern(field, v)
		if err != nil {
			return nil, err
		}
		return bson.M{field: bson.M{"$not": bson.Regex{Pattern: prefix + s + suffix}}}, nil
	}
}

func iregexOp(field string, v any) (bson.M, error) {
	s, err := pattern(field, v)
	if err != nil {
		return nil, err
	}
	return bson.M{field: bson.M{"$regex": s, "$options": "i"}}, nil
}

func existsOp(field string, v any) (bson.M, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, errs.New(errs.ErrInvalidValue, field, "exists expects a bool, got %T", v)
	}
	return bson.M{field: bson.M{"$exists": b}}, nil
}

func rangeOp(field string, v any) (bson.M, error) {
	list, ok := sdata.ToList(v)
	if !ok {
		return nil, errs.New(errs.ErrInvalidValue, field, "range expects a list, got %T", v)
	}
	if len(list) != 2 {
		return nil, errs.New(errs.ErrInvalidArity, field,
			"range expects 2 values [from, to], got %d", len(list))
	}
	return bson.M{field: bson.M{"$gte": list[0], "$lte": list[1]}}, nil
}

func incOp(field string, v any) (bson.M, error) {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return bson.M{"$inc": bson.M{field: v}}, nil
	}
	return nil, errs.New(errs.ErrInvalidValue, field, "inc expects an integer, got %T", v)
}

func pattern(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.ErrInvalidValue, field, "expected a string pattern, got %T", v)
	}
	return s, nil
}
