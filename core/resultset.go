package core

import (
	"context"

	"github.com/dosco/mongodoc/core/internal/dialect"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Record is one decoded document.
type Record[T any] struct {
	ID    any
	Value T

	// Raw is the document as the server returned it. Projected results
	// are only complete here.
	Raw bson.Raw

	// Refs holds the joined documents per lookup alias, hydrated through
	// the schema of the joined collection.
	Refs map[string][]bson.M
}

// Fields returns the named top level fields of the record. With no names
// every field is returned.
func (r *Record[T]) Fields(names ...string) (bson.M, error) {
	var doc bson.M
	if err := bson.Unmarshal(r.Raw, &doc); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return doc, nil
	}
	out := make(bson.M, len(names))
	for _, n := range names {
		if v, ok := doc[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

// DecodeRefs decodes the joined documents stored under alias into R. Field
// names are matched using bson struct tags.
func DecodeRefs[R, T any](r *Record[T], alias string) ([]R, error) {
	var out []R
	refs := r.Refs[alias]
	if len(refs) == 0 {
		return out, nil
	}

	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "bson",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Decode(refs); err != nil {
		return nil, err
	}
	return out, nil
}

// ResultSet iterates over the documents of a find or join. It must be
// closed unless it was drained with All or First.
type ResultSet[T any] struct {
	m       *Model[T]
	open    func(ctx context.Context) (*mongo.Cursor, error)
	lookups []*dialect.Lookup

	cursor *mongo.Cursor
	rec    *Record[T]
	err    error
}

func (m *Model[T]) newResultSet(ctx context.Context, verb string, lookups []*dialect.Lookup,
	open func(ctx context.Context, c Collection) (*mongo.Cursor, error),
) (*ResultSet[T], error) {
	rs := &ResultSet[T]{m: m, lookups: lookups}

	rs.open = func(ctx context.Context) (cur *mongo.Cursor, err error) {
		err = m.do(ctx, verb, func(ctx context.Context) error {
			cur, err = open(ctx, m.coll())
			return err
		})
		return
	}

	var err error
	if rs.cursor, err = rs.open(ctx); err != nil {
		return nil, err
	}
	return rs, nil
}

// Next advances to the next document. It returns false at the end or on
// error; check Err afterwards.
func (rs *ResultSet[T]) Next(ctx context.Context) bool {
	if rs.err != nil || rs.cursor == nil {
		return false
	}
	if !rs.cursor.Next(ctx) {
		rs.err = rs.cursor.Err()
		return false
	}
	rs.rec, rs.err = rs.m.record(rs.cursor.Current, rs.lookups)
	return rs.err == nil
}

// Record returns the document Next moved to.
func (rs *ResultSet[T]) Record() *Record[T] {
	return rs.rec
}

// Value returns the decoded value of the current document.
func (rs *ResultSet[T]) Value() T {
	var zero T
	if rs.rec == nil {
		return zero
	}
	return rs.rec.Value
}

func (rs *ResultSet[T]) Err() error {
	return rs.err
}

func (rs *ResultSet[T]) Close(ctx context.Context) error {
	if rs.cursor == nil {
		return nil
	}
	err := rs.cursor.Close(ctx)
	rs.cursor = nil
	return err
}

// Rewind closes the cursor and runs the query again.
func (rs *ResultSet[T]) Rewind(ctx context.Context) error {
	if err := rs.Close(ctx); err != nil {
		return err
	}
	rs.rec, rs.err = nil, nil

	cur, err := rs.open(ctx)
	if err != nil {
		rs.err = err
		return err
	}
	rs.cursor = cur
	return nil
}

// All drains and closes the result set.
func (rs *ResultSet[T]) All(ctx context.Context) ([]*Record[T], error) {
	defer rs.Close(ctx) //nolint:errcheck

	var out []*Record[T]
	for rs.Next(ctx) {
		out = append(out, rs.rec)
	}
	return out, rs.err
}

// Values drains the result set returning only the decoded values.
func (rs *ResultSet[T]) Values(ctx context.Context) ([]T, error) {
	recs, err := rs.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Value)
	}
	return out, nil
}

// First returns the first document, or nil when there is none, and closes
// the result set.
func (rs *ResultSet[T]) First(ctx context.Context) (*Record[T], error) {
	defer rs.Close(ctx) //nolint:errcheck

	if rs.Next(ctx) {
		return rs.rec, nil
	}
	return nil, rs.err
}

// record decodes raw into a Record, hydrating the documents joined by
// lookups.
func (m *Model[T]) record(raw bson.Raw, lookups []*dialect.Lookup) (*Record[T], error) {
	raw = append(bson.Raw(nil), raw...)
	rec := &Record[T]{Raw: raw}

	if err := bson.Unmarshal(raw, &rec.Value); err != nil {
		return nil, err
	}

	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	rec.ID = doc[IDField]

	if len(lookups) == 0 {
		return rec, nil
	}

	rec.Refs = make(map[string][]bson.M, len(lookups))
	for _, l := range lookups {
		alias := l.Alias()
		refs, err := hydrateRefs(l, doc[alias])
		if err != nil {
			return nil, err
		}
		rec.Refs[alias] = refs
	}
	return rec, nil
}

// hydrateRefs accepts both a joined array and, after $unwind, a single
// joined document.
func hydrateRefs(l *dialect.Lookup, v any) ([]bson.M, error) {
	var items []any

	switch v := v.(type) {
	case nil:
		return nil, nil
	case bson.A:
		items = v
	case []any:
		items = v
	default:
		items = []any{v}
	}

	out := make([]bson.M, 0, len(items))
	for _, it := range items {
		doc, err := asDoc(it)
		if err != nil {
			return nil, err
		}
		if doc, err = l.From.Hydrate(doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func asDoc(v any) (bson.M, error) {
	switch v := v.(type) {
	case bson.M:
		return v, nil
	case map[string]any:
		return bson.M(v), nil
	case bson.D:
		m := make(bson.M, len(v))
		for _, e := range v {
			m[e.Key] = e.Value
		}
		return m, nil
	}
	b, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	err = bson.Unmarshal(b, &m)
	return m, err
}
