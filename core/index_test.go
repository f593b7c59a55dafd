package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestAddIndex(t *testing.T) {
	ctx := context.Background()
	m, conn := newTickets(t)

	name, err := m.AddIndex(ctx, "position", -1, Unique())
	require.NoError(t, err)
	assert.Equal(t, "position_-1", name)

	require.Len(t, conn.idx.created, 1)
	assert.Equal(t, bson.D{{Key: "position", Value: -1}}, conn.idx.created[0].Keys)

	_, err = m.AddIndex(ctx, "position", -1)
	assert.True(t, errors.Is(err, ErrIndexAlreadyExists))

	_, err = m.AddIndex(ctx, "position", 3)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = m.AddIndex(ctx, "nope", 1)
	assert.True(t, errors.Is(err, ErrNotDeclaredField))

	list, err := m.CheckIndexes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDropIndex(t *testing.T) {
	ctx := context.Background()
	m, conn := newTickets(t)

	_, err := m.DropIndex(ctx, "name")
	assert.True(t, errors.Is(err, ErrInvalidIndexName))

	_, err = m.AddIndex(ctx, "name", 1)
	require.NoError(t, err)
	_, err = m.AddIndex(ctx, "name", -1)
	require.NoError(t, err)
	_, err = m.AddIndex(ctx, "position", 1)
	require.NoError(t, err)

	dropped, err := m.DropIndex(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"name_1", "name_-1"}, dropped)
	assert.Equal(t, []string{"name_1", "name_-1"}, conn.idx.dropped)
}

func TestSyncIndexes(t *testing.T) {
	ctx := context.Background()
	m, conn := newTickets(t)

	_, err := m.AddIndex(ctx, "name", 1)
	require.NoError(t, err)

	err = m.SyncIndexes(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "position", Value: 1}},
		Options: options.Index().SetName("position_1"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"name_1"}, conn.idx.dropped)

	list, err := m.CheckIndexes(ctx)
	require.NoError(t, err)

	var names []string
	for _, ix := range list {
		names = append(names, ix.Name)
	}
	assert.ElementsMatch(t, []string{"_id_", "position_1"}, names)

	err = m.SyncIndexes(ctx, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}})
	assert.True(t, errors.Is(err, ErrInvalidIndexName))
}

func TestDrop(t *testing.T) {
	m, conn := newTickets(t)
	require.NoError(t, m.Drop(context.Background()))
	assert.Equal(t, []string{"ticket"}, conn.dropped)
}
