package core

import (
	"github.com/dosco/mongodoc/core/internal/errs"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// QueryOption modifies a single verb call.
type QueryOption func(*queryConfig) error

type queryConfig struct {
	where    *Query
	whereSet bool

	skip    int64
	limit   int64
	sort    bson.D
	project []string
	stage   bson.M

	upsert    bool
	batchSize int
	batchSet  bool
}

func newQueryConfig(opts []QueryOption) (*queryConfig, error) {
	qc := &queryConfig{}
	for _, o := range opts {
		if err := o(qc); err != nil {
			return nil, err
		}
	}
	return qc, nil
}

// Where filters with a boolean expression instead of keyword lookups. When
// set, the Filter argument of the verb is ignored.
func Where(q *Query) QueryOption {
	return func(qc *queryConfig) error {
		if q == nil {
			return errs.New(errs.ErrInvalidArgsParams, "", "a query expression is required")
		}
		qc.where = q
		qc.whereSet = true
		return nil
	}
}

func Skip(n int64) QueryOption {
	return func(qc *queryConfig) error {
		if n < 0 {
			return errs.New(errs.ErrInvalidValue, "", "skip must not be negative")
		}
		qc.skip = n
		return nil
	}
}

func Limit(n int64) QueryOption {
	return func(qc *queryConfig) error {
		if n < 0 {
			return errs.New(errs.ErrInvalidValue, "", "limit must not be negative")
		}
		qc.limit = n
		return nil
	}
}

// Sort orders by fields. order is 1 for ascending and -1 for descending.
// Repeated Sort options append.
func Sort(order int, fields ...string) QueryOption {
	return func(qc *queryConfig) error {
		if order != 1 && order != -1 {
			return errs.New(errs.ErrInvalidValue, "", "sort order must be 1 or -1, got %d", order)
		}
		for _, f := range fields {
			qc.sort = append(qc.sort, bson.E{Key: f, Value: order})
		}
		return nil
	}
}

// Project restricts returned documents to fields.
func Project(fields ...string) QueryOption {
	return func(qc *queryConfig) error {
		qc.project = append(qc.project, fields...)
		return nil
	}
}

// ProjectStage sets the $project stage of a join pipeline verbatim.
func ProjectStage(p bson.M) QueryOption {
	return func(qc *queryConfig) error {
		qc.stage = p
		return nil
	}
}

// Upsert inserts a document when an update or replace matches nothing.
func Upsert() QueryOption {
	return func(qc *queryConfig) error {
		qc.upsert = true
		return nil
	}
}

// BatchSize overrides the bulk chunk size of the model. Zero or less sends
// everything in one bulk write.
func BatchSize(n int) QueryOption {
	return func(qc *queryConfig) error {
		qc.batchSize = n
		qc.batchSet = true
		return nil
	}
}

// projection returns the projection document for the fields, checking that
// each is declared.
func (m *Model[T]) projection(fields []string) (bson.M, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	p := bson.M{}
	for _, f := range fields {
		if !m.schema.Has(f) {
			return nil, errs.NotDeclared(f, m.schema.FieldNames())
		}
		p[f] = 1
	}
	return p, nil
}

func (m *Model[T]) sortDoc(sort bson.D) (bson.D, error) {
	for _, e := range sort {
		if !m.schema.Has(e.Key) {
			return nil, errs.NotDeclared(e.Key, m.schema.FieldNames())
		}
	}
	return sort, nil
}
