package core

import (
	"context"
	"slices"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Verb names a collection call for Raw.
type Verb string

const (
	VerbCount      Verb = "count"
	VerbFind       Verb = "find"
	VerbFindOne    Verb = "find_one"
	VerbInsertOne  Verb = "insert_one"
	VerbInsertMany Verb = "insert_many"
	VerbDeleteOne  Verb = "delete_one"
	VerbDeleteMany Verb = "delete_many"
	VerbUpdateOne  Verb = "update_one"
	VerbUpdateMany Verb = "update_many"
	VerbReplaceOne Verb = "replace_one"
	VerbAggregate  Verb = "aggregate"
)

var rawArity = map[Verb]int{
	VerbCount:      1,
	VerbFind:       1,
	VerbFindOne:    1,
	VerbInsertOne:  1,
	VerbInsertMany: 1,
	VerbDeleteOne:  1,
	VerbDeleteMany: 1,
	VerbUpdateOne:  2,
	VerbUpdateMany: 2,
	VerbReplaceOne: 2,
	VerbAggregate:  1,
}

// Raw sends hand built documents straight to the collection, still going
// through retry and reconnect. Documents being inserted or used as a
// replacement are checked against the schema first; filters, updates and
// pipelines are sent as given.
//
// The result is the driver result for the verb: an int64 for count, a
// []bson.M for find and aggregate, a bson.M (or nil) for find_one.
func (m *Model[T]) Raw(ctx context.Context, verb Verb, args ...any) (any, error) {
	n, ok := rawArity[verb]
	if !ok {
		return nil, errs.New(errs.ErrInvalidArgsParams, "", "unknown verb %q", verb)
	}
	if len(args) != n {
		return nil, errs.New(errs.ErrInvalidArgsParams, "", "%s takes %d arguments, got %d", verb, n, len(args))
	}

	args = slices.Clone(args)

	var err error
	switch verb {
	case VerbInsertOne:
		args[0], err = m.document(args[0])
	case VerbReplaceOne:
		args[1], err = m.document(args[1])
	case VerbInsertMany:
		args[0], err = m.documents(args[0])
	}
	if err != nil {
		return nil, err
	}

	var res any
	err = m.do(ctx, string(verb), func(ctx context.Context) (err error) {
		res, err = m.raw(ctx, verb, args)
		return
	})
	return res, err
}

func (m *Model[T]) raw(ctx context.Context, verb Verb, args []any) (any, error) {
	c := m.coll()

	switch verb {
	case VerbCount:
		return c.CountDocuments(ctx, args[0])

	case VerbFind, VerbAggregate:
		var out []bson.M
		var cur *mongo.Cursor
		var err error
		if verb == VerbAggregate {
			cur, err = c.Aggregate(ctx, args[0])
		} else {
			cur, err = c.Find(ctx, args[0])
		}
		if err != nil {
			return nil, err
		}
		err = cur.All(ctx, &out)
		return out, err

	case VerbFindOne:
		var out bson.M
		var raw bson.Raw
		if err := singleRaw(c.FindOne(ctx, args[0]), &raw); err != nil || raw == nil {
			return nil, err
		}
		err := bson.Unmarshal(raw, &out)
		return out, err

	case VerbInsertOne:
		return c.InsertOne(ctx, args[0])
	case VerbInsertMany:
		return c.InsertMany(ctx, args[0])
	case VerbDeleteOne:
		return c.DeleteOne(ctx, args[0])
	case VerbDeleteMany:
		return c.DeleteMany(ctx, args[0])
	case VerbUpdateOne:
		return c.UpdateOne(ctx, args[0], args[1])
	case VerbUpdateMany:
		return c.UpdateMany(ctx, args[0], args[1])
	case VerbReplaceOne:
		return c.ReplaceOne(ctx, args[0], args[1])
	}
	return nil, errs.New(errs.ErrInvalidArgsParams, "", "unknown verb %q", verb)
}

func (m *Model[T]) documents(v any) ([]any, error) {
	list, ok := sdata.ToList(v)
	if !ok {
		return nil, errs.New(errs.ErrInvalidValue, "", "insert_many takes a list of documents")
	}
	out := make([]any, 0, len(list))
	for _, it := range list {
		doc, err := m.document(it)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}
