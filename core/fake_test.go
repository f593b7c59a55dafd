package core

import (
	"context"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type call struct {
	verb   string
	filter any
	arg    any
	sess   *mongo.Session
}

// fakeCollection records every call and answers from canned data. Each
// call pops the head of fail and returns it; a nil entry lets that call
// succeed.
type fakeCollection struct {
	mu    sync.Mutex
	calls []call
	fail  []error

	docs  []any
	one   any
	count int64
}

func (f *fakeCollection) next(ctx context.Context, verb string, filter, arg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call{
		verb:   verb,
		filter: filter,
		arg:    arg,
		sess:   mongo.SessionFromContext(ctx),
	})
	if len(f.fail) != 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		return err
	}
	return nil
}

func (f *fakeCollection) callsTo(verb string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []call
	for _, c := range f.calls {
		if c.verb == verb {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCollection) single(err error) *mongo.SingleResult {
	if err != nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
	}
	if f.one == nil {
		return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(f.one, nil, nil)
}

func (f *fakeCollection) cursor(err error) (*mongo.Cursor, error) {
	if err != nil {
		return nil, err
	}
	return mongo.NewCursorFromDocuments(f.docs, nil, nil)
}

func (f *fakeCollection) CountDocuments(ctx context.Context, filter any,
	opts ...options.Lister[options.CountOptions]) (int64, error) {
	if err := f.next(ctx, "count", filter, nil); err != nil {
		return 0, err
	}
	return f.count, nil
}

func (f *fakeCollection) FindOne(ctx context.Context, filter any,
	opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult {
	return f.single(f.next(ctx, "find_one", filter, nil))
}

func (f *fakeCollection) Find(ctx context.Context, filter any,
	opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error) {
	return f.cursor(f.next(ctx, "find", filter, nil))
}

func (f *fakeCollection) InsertOne(ctx context.Context, document any,
	opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error) {
	if err := f.next(ctx, "insert_one", nil, document); err != nil {
		return nil, err
	}
	return &mongo.InsertOneResult{InsertedID: document.(bson.M)[IDField]}, nil
}

func (f *fakeCollection) InsertMany(ctx context.Context, documents any,
	opts ...options.Lister[options.InsertManyOptions]) (*mongo.InsertManyResult, error) {
	if err := f.next(ctx, "insert_many", nil, documents); err != nil {
		return nil, err
	}
	docs := documents.([]any)
	return &mongo.InsertManyResult{InsertedIDs: make([]any, len(docs))}, nil
}

func (f *fakeCollection) DeleteOne(ctx context.Context, filter any,
	opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error) {
	if err := f.next(ctx, "delete_one", filter, nil); err != nil {
		return nil, err
	}
	return &mongo.DeleteResult{DeletedCount: f.count}, nil
}

func (f *fakeCollection) DeleteMany(ctx context.Context, filter any,
	opts ...options.Lister[options.DeleteManyOptions]) (*mongo.DeleteResult, error) {
	if err := f.next(ctx, "delete_many", filter, nil); err != nil {
		return nil, err
	}
	return &mongo.DeleteResult{DeletedCount: f.count}, nil
}

func (f *fakeCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error) {
	if err := f.next(ctx, "update_one", filter, update); err != nil {
		return nil, err
	}
	return &mongo.UpdateResult{MatchedCount: f.count, ModifiedCount: f.count}, nil
}

func (f *fakeCollection) UpdateMany(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.UpdateManyOptions]) (*mongo.UpdateResult, error) {
	if err := f.next(ctx, "update_many", filter, update); err != nil {
		return nil, err
	}
	return &mongo.UpdateResult{MatchedCount: f.count, ModifiedCount: f.count}, nil
}

func (f *fakeCollection) ReplaceOne(ctx context.Context, filter any, replacement any,
	opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error) {
	if err := f.next(ctx, "replace_one", filter, replacement); err != nil {
		return nil, err
	}
	return &mongo.UpdateResult{MatchedCount: f.count, ModifiedCount: f.count}, nil
}

func (f *fakeCollection) FindOneAndUpdate(ctx context.Context, filter any, update any,
	opts ...options.Lister[options.FindOneAndUpdateOptions]) *mongo.SingleResult {
	return f.single(f.next(ctx, "find_one_and_update", filter, update))
}

func (f *fakeCollection) FindOneAndReplace(ctx context.Context, filter any, replacement any,
	opts ...options.Lister[options.FindOneAndReplaceOptions]) *mongo.SingleResult {
	return f.single(f.next(ctx, "find_one_and_replace", filter, replacement))
}

func (f *fakeCollection) Aggregate(ctx context.Context, pipeline any,
	opts ...options.Lister[options.AggregateOptions]) (*mongo.Cursor, error) {
	return f.cursor(f.next(ctx, "aggregate", nil, pipeline))
}

func (f *fakeCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel,
	opts ...options.Lister[options.BulkWriteOptions]) (*mongo.BulkWriteResult, error) {
	if err := f.next(ctx, "bulk_write", nil, models); err != nil {
		return nil, err
	}
	return &mongo.BulkWriteResult{ModifiedCount: int64(len(models))}, nil
}

type fakeIndexes struct {
	mu      sync.Mutex
	list    []IndexInfo
	created []mongo.IndexModel
	dropped []string
}

func (f *fakeIndexes) List(ctx context.Context) ([]IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IndexInfo(nil), f.list...), nil
}

func (f *fakeIndexes) CreateOne(ctx context.Context, model mongo.IndexModel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, err := indexName(model)
	if err != nil {
		return "", err
	}
	f.created = append(f.created, model)
	f.list = append(f.list, IndexInfo{Name: name, Key: model.Keys.(bson.D)})
	return name, nil
}

func (f *fakeIndexes) DropOne(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dropped = append(f.dropped, name)
	for i, ix := range f.list {
		if ix.Name == name {
			f.list = append(f.list[:i], f.list[i+1:]...)
			break
		}
	}
	return nil
}

type fakeConn struct {
	coll       *fakeCollection
	idx        *fakeIndexes
	reconnects atomic.Int32
	dropped    []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		coll: &fakeCollection{},
		idx:  &fakeIndexes{list: []IndexInfo{{Name: "_id_", Key: bson.D{{Key: "_id", Value: 1}}}}},
	}
}

func (c *fakeConn) Collection(name string) Collection {
	return c.coll
}

func (c *fakeConn) Indexes(collection string) IndexManager {
	return c.idx
}

func (c *fakeConn) DropCollection(ctx context.Context, name string) error {
	c.dropped = append(c.dropped, name)
	return nil
}

func (c *fakeConn) Reconnect(ctx context.Context) error {
	c.reconnects.Add(1)
	return nil
}

type Ticket struct {
	ID       bson.ObjectID `bson:"_id,omitempty"`
	Name     string        `bson:"name"`
	Position int           `bson:"position"`
}

var ticketSchema = MustSchema("Ticket", "",
	Field{Name: "name", Kind: KindString},
	Field{Name: "position", Kind: KindInt},
	Field{Name: "config", Kind: KindMap},
	Field{Name: "sign", Kind: KindInt, Excluded: true},
)

type Product struct {
	ID    bson.ObjectID `bson:"_id,omitempty"`
	Title string        `bson:"title"`
	Price float64       `bson:"price"`
}

var productSchema = MustSchema("Product", "",
	Field{Name: "title", Kind: KindString},
	Field{Name: "price", Kind: KindFloat},
)
