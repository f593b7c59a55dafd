package qcode

import (
	"errors"
	"testing"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/dosco/mongodoc/core/internal/sdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func newCompiler(t *testing.T) *Compiler {
	t.Helper()
	s := sdata.MustNew("Ticket", "",
		sdata.FieldSpec{Name: "name", Kind: sdata.KindString},
		sdata.FieldSpec{Name: "position", Kind: sdata.KindInt},
		sdata.FieldSpec{Name: "config", Kind: sdata.KindMap},
		sdata.FieldSpec{Name: "sign", Kind: sdata.KindInt, Excluded: true},
	)
	c, err := NewCompiler(s, 16)
	require.NoError(t, err)
	return c
}

func TestSplit(t *testing.T) {
	tests := []struct {
		key  string
		want LookupKey
	}{
		{"name", LookupKey{Field: "name"}},
		{"name__ne", LookupKey{Field: "name", Ops: []Op{OpNe}}},
		{"config__url__startswith", LookupKey{Field: "config", Path: []string{"url"}, Ops: []Op{OpStartsWith}}},
		{"config__a__b", LookupKey{Field: "config", Path: []string{"a", "b"}}},
		{"name__regex__startswith", LookupKey{Field: "name", Ops: []Op{OpRegex, OpStartsWith}}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.key))
		})
	}
	assert.Equal(t, "config.a.b", Split("config__a__b").Key())
}

func TestParse(t *testing.T) {
	c := newCompiler(t)

	lk, err := c.parser.Parse("position__gte")
	require.NoError(t, err)
	assert.Equal(t, LookupKey{Field: "position", Ops: []Op{OpGte}}, lk)

	// second call is served from the cache
	lk2, err := c.parser.Parse("position__gte")
	require.NoError(t, err)
	assert.Equal(t, lk, lk2)

	_, err = c.parser.Parse("_id__in")
	assert.NoError(t, err)

	_, err = c.parser.Parse("foo__gte")
	assert.True(t, errors.Is(err, errs.ErrNotDeclaredField))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "foo", e.Field)
	assert.Equal(t, []string{"config", "name", "position", "sign"}, e.Fields)

	_, err = c.parser.Parse("config____x")
	assert.True(t, errors.Is(err, errs.ErrUnknownField))
}

func TestFilter(t *testing.T) {
	c := newCompiler(t)
	oid := bson.NewObjectID()

	tests := []struct {
		name string
		kw   map[string]any
		want bson.M
	}{
		{"coerced equality", map[string]any{"name": 123}, bson.M{"name": "123"}},
		{"comparison operand coerced", map[string]any{"name__ne": 124}, bson.M{"name": bson.M{"$ne": "124"}}},
		{"pattern untouched", map[string]any{"name__regex": "^a.*"}, bson.M{"name": bson.M{"$regex": "^a.*"}}},
		{"in coerces elements", map[string]any{"name__in": []int{1, 3}}, bson.M{"name": bson.M{"$in": []any{"1", "3"}}}},
		{"nested path skips coercion", map[string]any{"config__url__startswith": "http"},
			bson.M{"config.url": bson.M{"$regex": "^http"}}},
		{"nested equality", map[string]any{"config__port": 80}, bson.M{"config.port": 80}},
		{"identifier", map[string]any{"_id": oid.Hex()}, bson.M{"_id": oid}},
		{"identifier list", map[string]any{"_id__in": []string{oid.Hex()}}, bson.M{"_id": bson.M{"$in": []any{oid}}}},
		{"identifier exists", map[string]any{"_id__exists": true}, bson.M{"_id": bson.M{"$exists": true}}},
		{"excluded field skipped", map[string]any{"sign": 1, "position": 2}, bson.M{"position": 2}},
		{"keys on same field merge", map[string]any{"position__gte": 1, "position__lte": 5},
			bson.M{"position": bson.M{"$gte": 1, "$lte": 5}}},
		{"range", map[string]any{"position__range": []string{"1", "5"}}, bson.M{"position": bson.M{"$gte": 1, "$lte": 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Filter(tt.kw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Multiple operator tokens on one key merge into one operator document in
// token order, so when two tokens write the same operator the last wins.
// Existing callers depend on this ordering.
func TestFilterLastTokenWins(t *testing.T) {
	c := newCompiler(t)

	got, err := c.Filter(map[string]any{"name__regex__startswith": "te"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": "^te"}}, got)

	got, err = c.Filter(map[string]any{"name__startswith__regex": "te"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": "te"}}, got)

	got, err = c.Filter(map[string]any{"position__gte__lte": 3})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"position": bson.M{"$gte": 3, "$lte": 3}}, got)
}

func TestFilterErrors(t *testing.T) {
	c := newCompiler(t)

	tests := []struct {
		name string
		kw   map[string]any
		kind error
	}{
		{"undeclared", map[string]any{"foo__gte": 1}, errs.ErrNotDeclaredField},
		{"bad coercion", map[string]any{"position": "abc"}, errs.ErrValidation},
		{"in scalar", map[string]any{"name__in": 1}, errs.ErrInvalidValue},
		{"range arity", map[string]any{"position__range": []int{1}}, errs.ErrInvalidArity},
		{"inc outside update", map[string]any{"position__inc": 1}, errs.ErrInvalidValue},
		{"bad object id", map[string]any{"_id": "nope"}, errs.ErrValidation},
		{"bad comparison operand", map[string]any{"position__gt": "x"}, errs.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Filter(tt.kw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestUpdate(t *testing.T) {
	c := newCompiler(t)

	filter, update, err := c.Update(map[string]any{
		"name":             "first",
		"position__set":    "4",
		"config__url__set": "http://x",
		"position__inc":    1,
	})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"name": "first"}, filter)
	assert.Equal(t, bson.M{
		"$set": bson.M{"position": 4, "config.url": "http://x"},
		"$inc": bson.M{"position": 1},
	}, update)

	filter, update, err = c.Update(map[string]any{"name__set": "b", "position__inc": 2})
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, filter)
	assert.Equal(t, bson.M{
		"$set": bson.M{"name": "b"},
		"$inc": bson.M{"position": 2},
	}, update)
}

func TestUpdateErrors(t *testing.T) {
	c := newCompiler(t)

	_, _, err := c.Update(map[string]any{"name": "x", "position": 1})
	assert.True(t, errors.Is(err, errs.ErrNoFieldsToUpdate))

	// increments alone are not enough
	_, _, err = c.Update(map[string]any{"name": "a", "position__inc": 1})
	assert.True(t, errors.Is(err, errs.ErrNoFieldsToUpdate))

	_, _, err = c.Update(map[string]any{"foo__set": 1})
	assert.True(t, errors.Is(err, errs.ErrNotDeclaredField))

	_, _, err = c.Update(map[string]any{"position__set": "x"})
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, _, err = c.Update(map[string]any{"name__set": "b", "position__inc": 1.5})
	assert.True(t, errors.Is(err, errs.ErrInvalidValue))
}
