package dialect

import (
	"errors"
	"testing"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ticket = sdata.MustNew("Ticket", "",
		sdata.FieldSpec{Name: "name", Kind: sdata.KindString},
		sdata.FieldSpec{Name: "position", Kind: sdata.KindInt},
		sdata.FieldSpec{Name: "product_id", Kind: sdata.KindObjectID},
	)
	product = sdata.MustNew("Product", "",
		sdata.FieldSpec{Name: "title", Kind: sdata.KindString},
		sdata.FieldSpec{Name: "sku", Kind: sdata.KindString},
	)
	image = sdata.MustNew("ProductImage", "",
		sdata.FieldSpec{Name: "url", Kind: sdata.KindString},
		sdata.FieldSpec{Name: "product_id", Kind: sdata.KindObjectID},
	)
)

func TestRenderJoin(t *testing.T) {
	l := &Lookup{From: product, LocalField: "product_id", ForeignField: "_id", As: "product", Unwind: true}

	stages, lookups, err := RenderJoin(JoinQuery{
		Main:   ticket,
		Filter: bson.M{"position": bson.M{"$gte": 1}},
		Join:   l,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, []*Lookup{l}, lookups)

	assert.Equal(t, []bson.D{
		{{Key: "$match", Value: bson.M{"position": bson.M{"$gte": 1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "product"},
			{Key: "localField", Value: "product_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "product"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$product"},
			{Key: "preserveNullAndEmptyArrays", Value: false},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "name", Value: 1},
			{Key: "position", Value: 1},
			{Key: "product_id", Value: 1},
			{Key: "product", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(10)}},
	}, stages)
}

func TestRenderJoinStageOrder(t *testing.T) {
	join := (&Lookup{From: product, LocalField: "product_id", ForeignField: "_id"}).
		And(&Lookup{From: image, LocalField: "product_id", ForeignField: "product_id", As: "images"})

	stages, _, err := RenderJoin(JoinQuery{
		Main:    ticket,
		Join:    join,
		Project: bson.M{"name": 1},
		Sort:    bson.D{{Key: "position", Value: -1}},
		Skip:    5,
	})
	require.NoError(t, err)

	var names []string
	for _, s := range stages {
		names = append(names, s[0].Key)
	}
	assert.Equal(t, []string{"$match", "$lookup", "$lookup", "$project", "$sort", "$skip"}, names)
	assert.Equal(t, bson.M{"name": 1}, stages[3][0].Value)
	assert.Equal(t, bson.M{}, stages[0][0].Value)
}

func TestCombineDedup(t *testing.T) {
	l := &Lookup{From: product, LocalField: "product_id", ForeignField: "_id"}
	same := &Lookup{From: product, LocalField: "product_id", ForeignField: "_id", As: "product"}
	other := &Lookup{From: image, LocalField: "_id", ForeignField: "product_id"}

	assert.Len(t, l.And(l).Lookups(), 1)
	assert.Len(t, l.And(same).Lookups(), 1, "default alias equals explicit alias")
	assert.Len(t, l.And(other).And(l, other).Lookups(), 2)

	stages, _, err := RenderJoin(JoinQuery{Main: ticket, Join: l.And(l)})
	require.NoError(t, err)

	n := 0
	for _, s := range stages {
		if s[0].Key == "$lookup" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRenderProjectAliasOverField(t *testing.T) {
	l := &Lookup{From: product, LocalField: "product_id", ForeignField: "_id", As: "product_id"}

	stages, _, err := RenderJoin(JoinQuery{Main: ticket, Join: l})
	require.NoError(t, err)

	assert.Equal(t, bson.D{
		{Key: "name", Value: 1},
		{Key: "position", Value: 1},
		{Key: "product_id", Value: 1},
	}, stages[2][0].Value)
}

func TestLookupValidation(t *testing.T) {
	_, _, err := RenderJoin(JoinQuery{
		Main: ticket,
		Join: &Lookup{From: product, LocalField: "nope", ForeignField: "_id"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotDeclaredField))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Fields, "title")
	assert.Contains(t, e.Fields, "position")

	// fields of the joined schema are addressable too
	_, _, err = RenderJoin(JoinQuery{
		Main: ticket,
		Join: &Lookup{From: product, LocalField: "sku", ForeignField: "sku"},
	})
	assert.NoError(t, err)
}

func TestRenderAggregations(t *testing.T) {
	f := bson.M{"name": "x"}

	assert.Equal(t, []bson.D{
		{{Key: "$match", Value: f}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$position"},
			{Key: "count", Value: bson.M{"$sum": 1}},
		}}},
	}, RenderCountBy(f, "position"))

	assert.Equal(t, []bson.D{
		{{Key: "$match", Value: f}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$name"}}}},
	}, RenderDistinct(f, "name"))

	assert.Equal(t, []bson.D{
		{{Key: "$match", Value: f}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "position__sum", Value: bson.M{"$sum": "$position"}},
			{Key: "position__max", Value: bson.M{"$max": "$position"}},
		}}},
	}, RenderTotals(f, Total{"position", Sum}, Total{"position", Max}))
}
