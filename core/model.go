// Package core maps MongoDB collections to declared schemas and translates
// keyword lookups, boolean queries and joins into driver calls.
//
//	ticket := core.MustSchema("Ticket", "",
//		core.Field{Name: "name", Kind: core.KindString},
//		core.Field{Name: "position", Kind: core.KindInt},
//	)
//	tickets, err := core.NewModel[Ticket](ticket, conn)
//	n, err := tickets.Count(ctx, core.Filter{"position__gte": 2})
package core

import (
	"fmt"
	"time"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/qcode"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// DefaultBulkBatchSize is the number of write models sent per bulk write.
	DefaultBulkBatchSize = 10000

	// DefaultKeyCacheSize is the number of parsed filter keys a model
	// remembers.
	DefaultKeyCacheSize = qcode.DefaultCacheSize
)

// Model binds a schema to a connection. T is the Go type documents are
// decoded into; it is decoded with the bson package so bson struct tags
// apply. A Model is safe for concurrent use.
type Model[T any] struct {
	schema   *Schema
	conn     Connection
	compiler *qcode.Compiler
	log      *zap.Logger
	conf     modelConfig

	tracer         trace.Tracer
	retryCount     metric.Int64Counter
	exhaustedCount metric.Int64Counter
}

type modelConfig struct {
	log        *zap.Logger
	retryDelay time.Duration
	batchSize  int
	cacheSize  int
	transient  func(error) bool
}

// Option configures a Model.
type Option func(*modelConfig)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *modelConfig) {
		c.log = log
	}
}

// WithRetryDelay sets the pause between attempts after a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(c *modelConfig) {
		c.retryDelay = d
	}
}

// WithBulkBatchSize sets the default chunk size for bulk operations.
func WithBulkBatchSize(n int) Option {
	return func(c *modelConfig) {
		c.batchSize = n
	}
}

// WithKeyCacheSize sets how many parsed lookup keys are remembered.
func WithKeyCacheSize(n int) Option {
	return func(c *modelConfig) {
		c.cacheSize = n
	}
}

// WithTransient adds a classifier for errors that should be retried on top
// of the driver's network, timeout and write concern errors.
func WithTransient(fn func(error) bool) Option {
	return func(c *modelConfig) {
		c.transient = fn
	}
}

// NewModel returns a model for schema s dispatching through conn.
func NewModel[T any](s *Schema, conn Connection, opts ...Option) (*Model[T], error) {
	if s == nil {
		return nil, fmt.Errorf("core: schema is required")
	}
	if conn == nil {
		return nil, fmt.Errorf("core: connection is required")
	}

	conf := modelConfig{
		log:       zap.NewNop(),
		batchSize: DefaultBulkBatchSize,
	}
	for _, o := range opts {
		o(&conf)
	}

	c, err := qcode.NewCompiler(s, conf.cacheSize)
	if err != nil {
		return nil, err
	}

	m := &Model[T]{
		schema:   s,
		conn:     conn,
		compiler: c,
		log:      conf.log.Named("mongodoc").With(zap.String("collection", s.Collection)),
		conf:     conf,
		tracer:   otel.Tracer("github.com/dosco/mongodoc/core"),
	}

	meter := otel.Meter("github.com/dosco/mongodoc/core")

	m.retryCount, _ = meter.Int64Counter("mongodoc.dispatch.retries",
		metric.WithDescription("Number of transient failures that were retried"))
	m.exhaustedCount, _ = meter.Int64Counter("mongodoc.dispatch.exhausted",
		metric.WithDescription("Number of calls that ran out of attempts"))

	return m, nil
}

// MustModel is NewModel that panics on error.
func MustModel[T any](s *Schema, conn Connection, opts ...Option) *Model[T] {
	m, err := NewModel[T](s, conn, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Model[T]) Schema() *Schema {
	return m.schema
}

// coll returns the current collection handle. It must be called inside
// the dispatched function so a reconnect between attempts is picked up.
func (m *Model[T]) coll() Collection {
	return m.conn.Collection(m.schema.Collection)
}

// CompileFilter returns the filter document a verb would send for f and
// opts, without dispatching anything.
func (m *Model[T]) CompileFilter(f Filter, opts ...QueryOption) (bson.M, error) {
	qc, err := newQueryConfig(opts)
	if err != nil {
		return nil, err
	}
	return m.filter(f, qc)
}

// CompileUpdate returns the filter and update documents an update verb
// would send for f.
func (m *Model[T]) CompileUpdate(f Filter) (filter, update bson.M, err error) {
	return m.compiler.Update(f)
}

func (m *Model[T]) filter(f Filter, qc *queryConfig) (bson.M, error) {
	if qc.whereSet {
		return compileQuery(m.compiler, qc.where)
	}
	return m.compiler.Filter(f)
}

func notFound(s *Schema) error {
	return errs.New(errs.ErrDoesNotExist, "", "no %s matches the query", s.Name)
}
