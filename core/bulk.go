package core

import (
	"context"
	"slices"

	"github.com/dosco/mongodoc/core/internal/errs"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// BulkUpdate sets updatedFields of every document in docs, matching each
// one by its identifier. Writes are sent in chunks; a failing chunk stops
// the remaining ones and earlier chunks are not rolled back.
func (m *Model[T]) BulkUpdate(ctx context.Context, docs []T, updatedFields []string, opts ...QueryOption) error {
	if len(updatedFields) == 0 {
		return errs.New(errs.ErrValidation, "", "updated fields can not be empty")
	}
	if err := m.checkFields(updatedFields); err != nil {
		return err
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, v := range docs {
		doc, err := m.document(v)
		if err != nil {
			return err
		}
		if missingID(doc) {
			return errs.New(errs.ErrInvalidValue, IDField, "documents need an identifier for bulk updates")
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{IDField: doc[IDField]}).
			SetUpdate(bson.M{"$set": pick(doc, updatedFields)}))
	}
	return m.bulkWrite(ctx, "bulk_update", models, opts)
}

// BulkUpdateOrCreate upserts every document in docs, matching on
// queryFields.
func (m *Model[T]) BulkUpdateOrCreate(ctx context.Context, docs []T, queryFields []string, opts ...QueryOption) error {
	if len(queryFields) == 0 {
		return errs.New(errs.ErrValidation, "", "query fields can not be empty")
	}
	if err := m.checkFields(queryFields); err != nil {
		return err
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, v := range docs {
		doc, err := m.document(v)
		if err != nil {
			return err
		}

		set := make(bson.M, len(doc))
		for k, v := range doc {
			if k != IDField {
				set[k] = v
			}
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(pick(doc, queryFields)).
			SetUpdate(bson.M{"$set": set}).
			SetUpsert(true))
	}
	return m.bulkWrite(ctx, "bulk_update_or_create", models, opts)
}

func (m *Model[T]) bulkWrite(ctx context.Context, verb string, models []mongo.WriteModel, opts []QueryOption) error {
	qc, err := newQueryConfig(opts)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return nil
	}

	size := m.conf.batchSize
	if qc.batchSet {
		size = qc.batchSize
	}
	if size <= 0 {
		size = len(models)
	}

	o := options.BulkWrite().SetOrdered(true)

	for chunk := range slices.Chunk(models, size) {
		err := m.do(ctx, verb, func(ctx context.Context) error {
			_, err := m.coll().BulkWrite(ctx, chunk, o)
			return err
		})
		if err != nil {
			return err
		}
		m.log.Debug("bulk chunk written", zap.String("verb", verb), zap.Int("size", len(chunk)))
	}
	return nil
}

func (m *Model[T]) checkFields(fields []string) error {
	for _, f := range fields {
		if err := m.checkField(f); err != nil {
			return err
		}
	}
	return nil
}

func pick(doc bson.M, fields []string) bson.M {
	out := make(bson.M, len(fields))
	for _, f := range fields {
		out[f] = doc[f]
	}
	return out
}
