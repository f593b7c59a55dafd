package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/dosco/mongodoc/core/internal/errs"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const defaultIndexName = "_id_"

// IndexOption configures AddIndex.
type IndexOption func(*options.IndexOptionsBuilder)

func Unique() IndexOption {
	return func(o *options.IndexOptionsBuilder) { o.SetUnique(true) }
}

func Sparse() IndexOption {
	return func(o *options.IndexOptionsBuilder) { o.SetSparse(true) }
}

func (m *Model[T]) indexes() IndexManager {
	return m.conn.Indexes(m.schema.Collection)
}

// CheckIndexes lists the indexes of the collection.
func (m *Model[T]) CheckIndexes(ctx context.Context) ([]IndexInfo, error) {
	var out []IndexInfo
	err := m.do(ctx, "list_indexes", func(ctx context.Context) (err error) {
		out, err = m.indexes().List(ctx)
		return
	})
	return out, err
}

// AddIndex creates a single field index named field_order and returns
// its name. order is 1 or -1.
func (m *Model[T]) AddIndex(ctx context.Context, field string, order int, opts ...IndexOption) (string, error) {
	if err := m.checkField(field); err != nil {
		return "", err
	}
	if order != 1 && order != -1 {
		return "", errs.New(errs.ErrInvalidValue, field, "index order must be 1 or -1, got %d", order)
	}

	name := fmt.Sprintf("%s_%d", field, order)

	existing, err := m.CheckIndexes(ctx)
	if err != nil {
		return "", err
	}
	for _, ix := range existing {
		if ix.Name == name {
			return "", errs.New(errs.ErrIndexAlreadyExists, field, "index %s already exists", name)
		}
	}

	io := options.Index().SetName(name)
	for _, o := range opts {
		o(io)
	}
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: order}},
		Options: io,
	}

	var created string
	err = m.do(ctx, "create_index", func(ctx context.Context) (err error) {
		created, err = m.indexes().CreateOne(ctx, model)
		return
	})
	return created, err
}

// DropIndex drops every index on field, whatever its order. It fails with
// ErrInvalidIndexName when there is none.
func (m *Model[T]) DropIndex(ctx context.Context, field string) ([]string, error) {
	existing, err := m.CheckIndexes(ctx)
	if err != nil {
		return nil, err
	}

	prefix := field + "_"
	var dropped []string

	for _, ix := range existing {
		if ix.Name == defaultIndexName || !strings.HasPrefix(ix.Name, prefix) {
			continue
		}
		err := m.do(ctx, "drop_index", func(ctx context.Context) error {
			return m.indexes().DropOne(ctx, ix.Name)
		})
		if err != nil {
			return dropped, err
		}
		dropped = append(dropped, ix.Name)
	}

	if len(dropped) == 0 {
		return nil, errs.New(errs.ErrInvalidIndexName, field, "no index found for %s", field)
	}
	return dropped, nil
}

// SyncIndexes makes the indexes of the collection match models: missing
// ones are created and unlisted ones dropped. The default _id index is left
// alone. Every model must be named.
func (m *Model[T]) SyncIndexes(ctx context.Context, models ...mongo.IndexModel) error {
	want := make(map[string]mongo.IndexModel, len(models))
	for _, im := range models {
		name, err := indexName(im)
		if err != nil {
			return err
		}
		want[name] = im
	}

	existing, err := m.CheckIndexes(ctx)
	if err != nil {
		return err
	}

	have := make(map[string]struct{}, len(existing))
	for _, ix := range existing {
		have[ix.Name] = struct{}{}
		if _, ok := want[ix.Name]; ok || ix.Name == defaultIndexName {
			continue
		}
		name := ix.Name
		err := m.do(ctx, "drop_index", func(ctx context.Context) error {
			return m.indexes().DropOne(ctx, name)
		})
		if err != nil {
			return err
		}
		m.log.Info("index dropped", zap.String("index", name))
	}

	for name, im := range want {
		if _, ok := have[name]; ok {
			continue
		}
		err := m.do(ctx, "create_index", func(ctx context.Context) error {
			_, err := m.indexes().CreateOne(ctx, im)
			return err
		})
		if err != nil {
			return err
		}
		m.log.Info("index created", zap.String("index", name))
	}
	return nil
}

func indexName(im mongo.IndexModel) (string, error) {
	if im.Options != nil {
		var o options.IndexOptions
		for _, set := range im.Options.List() {
			if err := set(&o); err != nil {
				return "", err
			}
		}
		if o.Name != nil && *o.Name != "" {
			return *o.Name, nil
		}
	}
	return "", errs.New(errs.ErrInvalidIndexName, "", "index models need a name")
}

// Drop drops the whole collection.
func (m *Model[T]) Drop(ctx context.Context) error {
	return m.do(ctx, "drop", func(ctx context.Context) error {
		return m.conn.DropCollection(ctx, m.schema.Collection)
	})
}
