package core

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection is the subset of *mongo.Collection the models dispatch to.
// *mongo.Collection satisfies it; tests and alternative stores provide
// their own. Sessions travel in the context (see WithSession).
type Collection interface {
	CountDocuments(ctx context.Context, filter any,
		opts ...options.Lister[options.CountOptions]) (int64, error)

	FindOne(ctx context.Context, filter any,
		opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult

	Find(ctx context.Context, filter any,
		opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)

	InsertOne(ctx context.Context, document any,
		opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)

	InsertMany(ctx context.Context, documents any,
		opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error)

	DeleteOne(ctx context.Context, filter any,
		opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)

	DeleteMany(ctx context.Context, filter any,
		opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error)

	UpdateOne(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)

	UpdateMany(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error)

	ReplaceOne(ctx context.Context, filter any, replacement any,
		opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)

	FindOneAndUpdate(ctx context.Context, filter any, update any,
		opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult

	FindOneAndReplace(ctx context.Context, filter any, replacement any,
		opts ...options.Lister[options.FindOneAndReplaceOptions]) *mongo.SingleResult

	Aggregate(ctx context.Context, pipeline any,
		opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error)

	BulkWrite(ctx context.Context, models []mongo.WriteModel,
		opts ...options.Lister[options.BulkWriteOptions]) (*mongo.BulkWriteResult, error)
}

// IndexInfo is one existing index.
type IndexInfo struct {
	Name string `bson:"name"`
	Key  bson.D `bson:"key"`
}

// IndexManager manages the indexes of one collection.
type IndexManager interface {
	List(ctx context.Context) ([]IndexInfo, error)
	CreateOne(ctx context.Context, model mongo.IndexModel) (string, error)
	DropOne(ctx context.Context, name string) error
}

// Connection hands out collection handles. Handles are looked up again on
// every attempt, so after Reconnect the next attempt uses the new client.
type Connection interface {
	Collection(name string) Collection
	Indexes(collection string) IndexManager
	DropCollection(ctx context.Context, name string) error

	// Reconnect replaces the underlying client. It must be safe to call
	// from concurrent retries.
	Reconnect(ctx context.Context) error
}

// WithSession returns a context carrying sess. Every call made with the
// returned context runs inside the session.
func WithSession(ctx context.Context, sess *mongo.Session) context.Context {
	return mongo.NewSessionContext(ctx, sess)
}
