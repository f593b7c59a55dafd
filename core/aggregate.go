package core

import (
	"context"
	"fmt"

	"github.com/dosco/mongodoc/core/internal/dialect"
	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
)

// Lookup describes one $lookup join. See Combine for joining several
// collections in one pipeline.
type Lookup = dialect.Lookup

// LookupCombination is an ordered set of lookups without duplicates.
type LookupCombination = dialect.LookupCombination

// Joiner is a Lookup or a LookupCombination.
type Joiner = dialect.Joiner

// Total is one accumulator applied to one field, reported as field__op.
type Total = dialect.Total

// Accumulator is the $group operator of a Total.
type Accumulator = dialect.Accumulator

const (
	Sum = dialect.Sum
	Max = dialect.Max
	Min = dialect.Min
	Avg = dialect.Avg
)

// Combine joins lookups into one pipeline, dropping repeated ones.
func Combine(joins ...Joiner) *LookupCombination {
	return dialect.Combine(joins...)
}

// Aggregate runs a join: $match from f (or Where), one $lookup per join
// with an optional $unwind, then $project, $sort and the optional $skip and
// $limit. Joined documents are attached to each Record under the lookup
// alias.
func (m *Model[T]) Aggregate(ctx context.Context, f Filter, join Joiner, opts ...QueryOption) (*ResultSet[T], error) {
	qc, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}

	pipeline, lookups, err := dialect.RenderJoin(dialect.JoinQuery{
		Main:    m.schema,
		Filter:  filter,
		Join:    join,
		Project: qc.stage,
		Sort:    qc.sort,
		Skip:    qc.skip,
		Limit:   qc.limit,
	})
	if err != nil {
		return nil, err
	}

	m.log.Debug("aggregate", zap.Int("stages", len(pipeline)), zap.Int("lookups", len(lookups)))

	return m.newResultSet(ctx, "aggregate", lookups,
		func(ctx context.Context, c Collection) (*mongo.Cursor, error) {
			return c.Aggregate(ctx, pipeline)
		})
}

// AggregateLookup is Aggregate with a single join.
func (m *Model[T]) AggregateLookup(ctx context.Context, f Filter, l *Lookup, opts ...QueryOption) (*ResultSet[T], error) {
	if l == nil {
		return nil, errs.New(errs.ErrInvalidArgsParams, "", "a lookup is required")
	}
	return m.Aggregate(ctx, f, l, opts...)
}

// aggregate runs pipeline and decodes every output document.
func (m *Model[T]) aggregate(ctx context.Context, verb string, pipeline []bson.D) ([]bson.M, error) {
	var out []bson.M
	err := m.do(ctx, verb, func(ctx context.Context) error {
		cur, err := m.coll().Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		out = nil
		return cur.All(ctx, &out)
	})
	return out, err
}

func (m *Model[T]) checkField(field string) error {
	if field == IDField || m.schema.Has(field) {
		return nil
	}
	return errs.NotDeclared(field, m.schema.FieldNames())
}

// AggregateCount counts the matching documents per distinct value of
// field. Values are keyed by their string form.
func (m *Model[T]) AggregateCount(ctx context.Context, field string, f Filter, opts ...QueryOption) (map[string]int64, error) {
	if err := m.checkField(field); err != nil {
		return nil, err
	}
	_, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}

	docs, err := m.aggregate(ctx, "aggregate_count", dialect.RenderCountBy(filter, field))
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(docs))
	for _, d := range docs {
		n, err := cast.ToInt64E(d["count"])
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(d[IDField])] = n
	}
	return out, nil
}

// Distinct returns the distinct values of field among the matching
// documents.
func (m *Model[T]) Distinct(ctx context.Context, field string, f Filter, opts ...QueryOption) ([]any, error) {
	if err := m.checkField(field); err != nil {
		return nil, err
	}
	_, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}

	docs, err := m.aggregate(ctx, "distinct", dialect.RenderDistinct(filter, field))
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d[IDField])
	}
	return out, nil
}

// AggregateMultiply computes several totals in one pass. The result is
// keyed field__op; every requested key is present and zero when nothing
// matched.
func (m *Model[T]) AggregateMultiply(ctx context.Context, f Filter, totals []Total, opts ...QueryOption) (map[string]float64, error) {
	if len(totals) == 0 {
		return nil, errs.New(errs.ErrInvalidArgsParams, "", "at least one total is required")
	}
	for _, t := range totals {
		if err := m.checkField(t.Field); err != nil {
			return nil, err
		}
		switch t.Op {
		case Sum, Max, Min, Avg:
		default:
			return nil, errs.New(errs.ErrInvalidValue, t.Field, "unknown accumulator %q", t.Op)
		}
	}

	_, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}

	docs, err := m.aggregate(ctx, "aggregate_multiply", dialect.RenderTotals(filter, totals...))
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(totals))
	for _, t := range totals {
		out[t.Key()] = 0
	}
	if len(docs) == 0 {
		return out, nil
	}
	for _, t := range totals {
		v := docs[0][t.Key()]
		if v == nil {
			continue
		}
		if out[t.Key()], err = cast.ToFloat64E(v); err != nil {
			return nil, errs.Wrap(errs.ErrInvalidValue, t.Key(), err)
		}
	}
	return out, nil
}

func (m *Model[T]) aggregateOne(ctx context.Context, op Accumulator, field string, f Filter, opts []QueryOption) (float64, error) {
	t := Total{Field: field, Op: op}
	res, err := m.AggregateMultiply(ctx, f, []Total{t}, opts...)
	if err != nil {
		return 0, err
	}
	return res[t.Key()], nil
}

// AggregateSum returns the sum of field over the matching documents, 0
// when nothing matched.
func (m *Model[T]) AggregateSum(ctx context.Context, field string, f Filter, opts ...QueryOption) (float64, error) {
	return m.aggregateOne(ctx, Sum, field, f, opts)
}

func (m *Model[T]) AggregateMax(ctx context.Context, field string, f Filter, opts ...QueryOption) (float64, error) {
	return m.aggregateOne(ctx, Max, field, f, opts)
}

func (m *Model[T]) AggregateMin(ctx context.Context, field string, f Filter, opts ...QueryOption) (float64, error) {
	return m.aggregateOne(ctx, Min, field, f, opts)
}

func (m *Model[T]) AggregateAvg(ctx context.Context, field string, f Filter, opts ...QueryOption) (float64, error) {
	return m.aggregateOne(ctx, Avg, field, f, opts)
}
