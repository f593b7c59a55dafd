package core

import (
	"context"

	"github.com/dosco/mongodoc/core/internal/errs"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// document converts v to a document checked against the schema.
func (m *Model[T]) document(v any) (bson.M, error) {
	doc, err := asDoc(v)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidValue, "", err)
	}
	return m.compiler.Document(doc)
}

// missingID reports whether doc has no usable identifier. A zero ObjectID,
// left by an _id field without omitempty, counts as missing.
func missingID(doc bson.M) bool {
	switch id := doc[IDField].(type) {
	case nil:
		return true
	case bson.ObjectID:
		return id.IsZero()
	}
	return false
}

// InsertOne validates v and inserts it, returning its identifier. An
// identifier is assigned before sending so a retried insert can not
// create a second copy.
func (m *Model[T]) InsertOne(ctx context.Context, v T) (any, error) {
	doc, err := m.document(v)
	if err != nil {
		return nil, err
	}
	if missingID(doc) {
		doc[IDField] = bson.NewObjectID()
	}

	var id any
	err = m.do(ctx, "insert_one", func(ctx context.Context) error {
		res, err := m.coll().InsertOne(ctx, doc)
		if err != nil {
			return err
		}
		id = res.InsertedID
		return nil
	})
	return id, err
}

// InsertMany validates and inserts vs, returning how many were inserted.
func (m *Model[T]) InsertMany(ctx context.Context, vs []T) (int, error) {
	if len(vs) == 0 {
		return 0, nil
	}

	docs := make([]any, 0, len(vs))
	for _, v := range vs {
		doc, err := m.document(v)
		if err != nil {
			return 0, err
		}
		if missingID(doc) {
			doc[IDField] = bson.NewObjectID()
		}
		docs = append(docs, doc)
	}

	var n int
	err := m.do(ctx, "insert_many", func(ctx context.Context) error {
		res, err := m.coll().InsertMany(ctx, docs)
		if err != nil {
			return err
		}
		n = len(res.InsertedIDs)
		return nil
	})
	return n, err
}

// DeleteOne deletes the first document matching f and returns the number
// deleted.
func (m *Model[T]) DeleteOne(ctx context.Context, f Filter, opts ...QueryOption) (int64, error) {
	_, filter, err := m.prepare(f, opts)
	if err != nil {
		return 0, err
	}

	var n int64
	err = m.do(ctx, "delete_one", func(ctx context.Context) error {
		res, err := m.coll().DeleteOne(ctx, filter)
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}

// DeleteMany deletes every document matching f.
func (m *Model[T]) DeleteMany(ctx context.Context, f Filter, opts ...QueryOption) (int64, error) {
	_, filter, err := m.prepare(f, opts)
	if err != nil {
		return 0, err
	}

	var n int64
	err = m.do(ctx, "delete_many", func(ctx context.Context) error {
		res, err := m.coll().DeleteMany(ctx, filter)
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}

// updateDocs splits f into filter and update documents. A Where option is
// combined with the keyword filter.
func (m *Model[T]) updateDocs(f Filter, opts []QueryOption) (*queryConfig, bson.M, bson.M, error) {
	qc, err := newQueryConfig(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	if qc.sort, err = m.sortDoc(qc.sort); err != nil {
		return nil, nil, nil, err
	}

	filter, update, err := m.compiler.Update(f)
	if err != nil {
		return nil, nil, nil, err
	}

	if qc.whereSet {
		w, err := compileQuery(m.compiler, qc.where)
		if err != nil {
			return nil, nil, nil, err
		}
		if len(filter) == 0 {
			filter = w
		} else {
			filter = bson.M{"$and": bson.A{w, filter}}
		}
	}
	return qc, filter, update, nil
}

// UpdateOne applies the __set and mutation keys of f to the first document
// matching the remaining keys. It returns the number of documents modified.
//
//	n, err := m.UpdateOne(ctx, core.Filter{"name": "a", "position__set": 3})
func (m *Model[T]) UpdateOne(ctx context.Context, f Filter, opts ...QueryOption) (int64, error) {
	qc, filter, update, err := m.updateDocs(f, opts)
	if err != nil {
		return 0, err
	}

	o := options.UpdateOne().SetUpsert(qc.upsert)

	var n int64
	err = m.do(ctx, "update_one", func(ctx context.Context) error {
		res, err := m.coll().UpdateOne(ctx, filter, update, o)
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	return n, err
}

// UpdateMany is UpdateOne for every matching document.
func (m *Model[T]) UpdateMany(ctx context.Context, f Filter, opts ...QueryOption) (int64, error) {
	qc, filter, update, err := m.updateDocs(f, opts)
	if err != nil {
		return 0, err
	}

	o := options.UpdateMany().SetUpsert(qc.upsert)

	var n int64
	err = m.do(ctx, "update_many", func(ctx context.Context) error {
		res, err := m.coll().UpdateMany(ctx, filter, update, o)
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	return n, err
}

// ReplaceOne replaces the first document matching f with v.
func (m *Model[T]) ReplaceOne(ctx context.Context, f Filter, v T, opts ...QueryOption) (int64, error) {
	qc, filter, err := m.prepare(f, opts)
	if err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return 0, errs.New(errs.ErrInvalidArgsParams, "", "replace needs a filter")
	}
	doc, err := m.document(v)
	if err != nil {
		return 0, err
	}

	o := options.Replace().SetUpsert(qc.upsert)

	var n int64
	err = m.do(ctx, "replace_one", func(ctx context.Context) error {
		res, err := m.coll().ReplaceOne(ctx, filter, doc, o)
		if err != nil {
			return err
		}
		n = res.ModifiedCount
		return nil
	})
	return n, err
}

// FindOneAndUpdate updates the first document matching f and returns it as
// it is after the update, or nil when nothing matched. With Project the
// returned Record only has the projected fields in Raw.
func (m *Model[T]) FindOneAndUpdate(ctx context.Context, f Filter, opts ...QueryOption) (*Record[T], error) {
	qc, filter, update, err := m.updateDocs(f, opts)
	if err != nil {
		return nil, err
	}
	proj, err := m.projection(qc.project)
	if err != nil {
		return nil, err
	}

	o := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(qc.upsert)
	if len(qc.sort) != 0 {
		o.SetSort(qc.sort)
	}
	if proj != nil {
		o.SetProjection(proj)
	}

	var raw bson.Raw
	err = m.do(ctx, "find_one_and_update", func(ctx context.Context) error {
		return singleRaw(m.coll().FindOneAndUpdate(ctx, filter, update, o), &raw)
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return m.record(raw, nil)
}

// FindOneAndReplace replaces the first document matching f with v and
// returns the stored replacement.
func (m *Model[T]) FindOneAndReplace(ctx context.Context, f Filter, v T, opts ...QueryOption) (*Record[T], error) {
	qc, filter, err := m.prepare(f, opts)
	if err != nil {
		return nil, err
	}
	if len(filter) == 0 {
		return nil, errs.New(errs.ErrInvalidArgsParams, "", "replace needs a filter")
	}
	doc, err := m.document(v)
	if err != nil {
		return nil, err
	}
	proj, err := m.projection(qc.project)
	if err != nil {
		return nil, err
	}

	o := options.FindOneAndReplace().
		SetReturnDocument(options.After).
		SetUpsert(qc.upsert)
	if len(qc.sort) != 0 {
		o.SetSort(qc.sort)
	}
	if proj != nil {
		o.SetProjection(proj)
	}

	var raw bson.Raw
	err = m.do(ctx, "find_one_and_replace", func(ctx context.Context) error {
		return singleRaw(m.coll().FindOneAndReplace(ctx, filter, doc, o), &raw)
	})
	if err != nil || raw == nil {
		return nil, err
	}
	return m.record(raw, nil)
}

// GetOrCreate returns the first document matching f, inserting v when there
// is none. created reports whether v was inserted.
func (m *Model[T]) GetOrCreate(ctx context.Context, f Filter, v T) (rec *Record[T], created bool, err error) {
	if rec, err = m.FindOne(ctx, f); err != nil || rec != nil {
		return rec, false, err
	}

	id, err := m.InsertOne(ctx, v)
	if err != nil {
		return nil, false, err
	}
	rec, err = m.Get(ctx, Filter{IDField: id})
	return rec, err == nil, err
}

// UpdateOrCreate is FindOneAndUpdate with upsert: the matching document is
// updated, or a new one built from the filter and update is inserted.
func (m *Model[T]) UpdateOrCreate(ctx context.Context, f Filter, opts ...QueryOption) (*Record[T], error) {
	return m.FindOneAndUpdate(ctx, f, append(opts, Upsert())...)
}
