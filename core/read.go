package core

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// prepare applies opts and compiles the match filter.
func (m *Model[T]) prepare(f Filter, opts []QueryOption) (*queryConfig, bson.M, error) {
	qc, err := newQueryConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	filter, err := m.filter(f, qc)
	if err != nil {
		return nil, nil, err
	}
	if qc.sort, err = m.sortDoc(qc.sort); err != nil {
		return nil, nil, err
	}
	return qc, filter, nil
}

// Count returns the number of documents matching f.
func (m *Model[T]) Count(ctx context.Context, f Filter, opts ...QueryOption) (int64, error) {
	qc, filter, err := m.prepare(f, opts)
	if err != nil {
		return 0, err
	}

	o := options.Count()
	if qc.skip > 0 {
		o.SetSkip(qc.skip)
	}
	if qc.limit > 0 {
		o.SetLimit(qc.limit)
	}

	var n int64
	err = m.do(ctx, "count", func(ctx context.Context) (err error) {
		n, err = m.coll().CountDocuments(ctx, filter, o)
		return
	})
	return n, err
}

// Exists reports whether any document matches f.
func (m *Model[T]) Exists(ctx context.Context, f Filter, opts ...QueryOption) (bool, error) {
	n, err := m.Count(ctx, f, append(opts, Limit(1))...)
	return n != 0, err
}

// FindOne returns the first document matching f, or nil when there is
// none.
func (m *Model[T]) FindOne(ctx context.Context, f Filter, opts ...QueryOption) (*Record[T], error) {
	qc, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}
	proj, err := m.projection(qc.project)
	if err != nil {
		return nil, err
	}

	o := options.FindOne()
	if len(qc.sort) != 0 {
		o.SetSort(qc.sort)
	}
	if proj != nil {
		o.SetProjection(proj)
	}
	if qc.skip > 0 {
		o.SetSkip(qc.skip)
	}

	var raw bson.Raw
	err = m.do(ctx, "find_one", func(ctx context.Context) error {
		return singleRaw(m.coll().FindOne(ctx, filter, o), &raw)
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return m.record(raw, nil)
}

// Get is FindOne failing with ErrDoesNotExist when nothing matches.
func (m *Model[T]) Get(ctx context.Context, f Filter, opts ...QueryOption) (*Record[T], error) {
	rec, err := m.FindOne(ctx, f, opts...)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(m.schema)
	}
	return rec, nil
}

// Find returns every document matching f.
func (m *Model[T]) Find(ctx context.Context, f Filter, opts ...QueryOption) (*ResultSet[T], error) {
	qc, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}
	proj, err := m.projection(qc.project)
	if err != nil {
		return nil, err
	}

	o := options.Find()
	if len(qc.sort) != 0 {
		o.SetSort(qc.sort)
	}
	if proj != nil {
		o.SetProjection(proj)
	}
	if qc.skip > 0 {
		o.SetSkip(qc.skip)
	}
	if qc.limit > 0 {
		o.SetLimit(qc.limit)
	}

	return m.newResultSet(ctx, "find", nil,
		func(ctx context.Context, c Collection) (*mongo.Cursor, error) {
			return c.Find(ctx, filter, o)
		})
}

// FindWithCount is Find plus the total number of matches ignoring skip and
// limit, as needed for pagination.
func (m *Model[T]) FindWithCount(ctx context.Context, f Filter, opts ...QueryOption) (*ResultSet[T], int64, error) {
	qc, err := newQueryConfig(opts)
	if err != nil {
		return nil, 0, err
	}

	var countOpts []QueryOption
	if qc.whereSet {
		countOpts = append(countOpts, Where(qc.where))
	}
	n, err := m.Count(ctx, f, countOpts...)
	if err != nil {
		return nil, 0, err
	}

	rs, err := m.Find(ctx, f, opts...)
	if err != nil {
		return nil, 0, err
	}
	return rs, n, nil
}

// singleRaw stores the document of res in raw. A missing document leaves
// raw nil and is not an error.
func singleRaw(res *mongo.SingleResult, raw *bson.Raw) error {
	r, err := res.Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		*raw = nil
		return nil
	}
	if err != nil {
		return err
	}
	*raw = r
	return nil
}
