package conf_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dosco/mongodoc/conf"
	"github.com/dosco/mongodoc/core"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap/zaptest"
)

const ticketsYAML = `
schemas:
  - name: Ticket
    fields:
      - name: name
        type: string
        validate: required
      - name: position
        type: int
      - name: sign
        type: int
        exclude_query: true
    indexes:
      - field: position
        order: -1
        unique: true
  - name: ProductImage
    collection: images
    fields:
      - name: url
        type: string
`

func TestParseSchemas(t *testing.T) {
	entries, err := conf.ParseSchemas([]byte(ticketsYAML))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	ticket := entries["Ticket"]
	require.NotNil(t, ticket)
	assert.Equal(t, "ticket", ticket.Schema.Collection)
	assert.Equal(t, []string{"name", "position", "sign"}, ticket.Schema.FieldNames())

	f, ok := ticket.Schema.Field("position")
	require.True(t, ok)
	assert.Equal(t, core.KindInt, f.Kind)

	f, _ = ticket.Schema.Field("sign")
	assert.True(t, f.Excluded)

	require.Len(t, ticket.Indexes, 1)
	assert.Equal(t, bson.D{{Key: "position", Value: -1}}, ticket.Indexes[0].Keys)

	var io options.IndexOptions
	for _, fn := range ticket.Indexes[0].Options.List() {
		require.NoError(t, fn(&io))
	}
	require.NotNil(t, io.Name)
	assert.Equal(t, "position_-1", *io.Name)
	require.NotNil(t, io.Unique)
	assert.True(t, *io.Unique)

	assert.Equal(t, "images", entries["ProductImage"].Schema.Collection)
}

func TestParseSchemasErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"not yaml", "schemas: ["},
		{"unknown type", "schemas:\n  - name: A\n    fields:\n      - name: x\n        type: money\n"},
		{"duplicate schema", "schemas:\n  - name: A\n  - name: A\n"},
		{"missing name", "schemas:\n  - collection: a\n"},
		{"index on undeclared field", "schemas:\n  - name: A\n    indexes:\n      - field: x\n"},
		{"bad index order", "schemas:\n  - name: A\n    fields:\n      - name: x\n    indexes:\n      - field: x\n        order: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conf.ParseSchemas([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

// nolint:errcheck
func TestRegistryReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/config/schema.yml", []byte(ticketsYAML), 0o666)

	r, err := conf.NewRegistry(fs, "/config/schema.yml", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"ProductImage", "Ticket"}, r.Names())

	s, ok := r.Schema("Ticket")
	require.True(t, ok)
	assert.Equal(t, "ticket", s.Collection)

	_, ok = r.Schema("Order")
	assert.False(t, ok)

	var reloads atomic.Int32
	r.OnReload(func(map[string]*conf.Entry) { reloads.Add(1) })

	afero.WriteFile(fs, "/config/schema.yml",
		[]byte("schemas:\n  - name: Order\n    fields:\n      - name: total\n        type: float\n"), 0o666)
	require.NoError(t, r.Reload())

	assert.Equal(t, []string{"Order"}, r.Names())
	assert.Equal(t, int32(1), reloads.Load())

	// a broken file keeps what was loaded
	afero.WriteFile(fs, "/config/schema.yml", []byte("schemas: ["), 0o666)
	assert.Error(t, r.Reload())
	assert.Equal(t, []string{"Order"}, r.Names())
	assert.Equal(t, int32(1), reloads.Load())
}

func TestRegistryMissingFile(t *testing.T) {
	_, err := conf.NewRegistry(afero.NewMemMapFs(), "/nope.yml", nil)
	assert.Error(t, err)
}

func TestRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yml")
	require.NoError(t, os.WriteFile(path, []byte(ticketsYAML), 0o600))

	// the watcher goroutine may still log after the test returns
	r, err := conf.NewRegistry(afero.NewOsFs(), path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Watch())
	defer r.Close() //nolint:errcheck

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x: 1"), 0o600))

	require.NoError(t, os.WriteFile(path,
		[]byte("schemas:\n  - name: Order\n    fields:\n      - name: total\n        type: float\n"), 0o600))

	assert.Eventually(t, func() bool {
		_, ok := r.Schema("Order")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}
