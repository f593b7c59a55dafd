package mongodriver

import (
	"context"

	"github.com/dosco/mongodoc/core"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// indexView implements core.IndexManager for one collection.
type indexView struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func (v *indexView) List(ctx context.Context) ([]core.IndexInfo, error) {
	cur, err := v.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx) //nolint:errcheck

	var out []core.IndexInfo
	for cur.Next(ctx) {
		var ix core.IndexInfo
		if err := cur.Decode(&ix); err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, cur.Err()
}

func (v *indexView) CreateOne(ctx context.Context, model mongo.IndexModel) (string, error) {
	return v.coll.Indexes().CreateOne(ctx, model)
}

// DropOne drops the named index with the dropIndexes command.
func (v *indexView) DropOne(ctx context.Context, name string) error {
	cmd := bson.D{
		{Key: "dropIndexes", Value: v.coll.Name()},
		{Key: "index", Value: name},
	}
	return v.db.RunCommand(ctx, cmd).Err()
}
