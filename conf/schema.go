package conf

import (
	"fmt"

	"github.com/dosco/mongodoc/core"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gopkg.in/yaml.v3"
)

// SchemaFile is the layout of a schema declaration file:
//
//	schemas:
//	  - name: Ticket
//	    fields:
//	      - name: name
//	        type: string
//	        validate: required
//	      - name: position
//	        type: int
//	    indexes:
//	      - field: position
//	        order: -1
//	        unique: true
type SchemaFile struct {
	Schemas []SchemaDecl `yaml:"schemas"`
}

type SchemaDecl struct {
	Name       string      `yaml:"name"`
	Collection string      `yaml:"collection"`
	Fields     []FieldDecl `yaml:"fields"`
	Indexes    []IndexDecl `yaml:"indexes"`
}

type FieldDecl struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Validate     string `yaml:"validate"`
	ExcludeQuery bool   `yaml:"exclude_query"`
}

// IndexDecl declares a single field index. Order defaults to 1.
type IndexDecl struct {
	Field  string `yaml:"field"`
	Order  int    `yaml:"order"`
	Unique bool   `yaml:"unique"`
	Sparse bool   `yaml:"sparse"`
}

// Entry is a built schema with the indexes declared for it.
type Entry struct {
	Schema  *core.Schema
	Indexes []mongo.IndexModel
}

// IndexNames returns the names of the declared indexes.
func (e *Entry) IndexNames() []string {
	names := make([]string, 0, len(e.Indexes))
	for _, im := range e.Indexes {
		if im.Options == nil {
			continue
		}
		var io options.IndexOptions
		for _, fn := range im.Options.List() {
			fn(&io) //nolint:errcheck
		}
		if io.Name != nil {
			names = append(names, *io.Name)
		}
	}
	return names
}

// ReadSchemas reads and builds the schemas declared in path.
func ReadSchemas(fs afero.Fs, path string) (map[string]*Entry, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrap(err, "reading schema file")
	}
	return ParseSchemas(b)
}

// ParseSchemas builds the schemas declared in a YAML document, keyed by
// schema name.
func ParseSchemas(b []byte) (map[string]*Entry, error) {
	var sf SchemaFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return nil, errors.Wrap(err, "parsing schema file")
	}
	if len(sf.Schemas) == 0 {
		return nil, errors.New("schema file declares no schemas")
	}

	entries := make(map[string]*Entry, len(sf.Schemas))
	for _, sd := range sf.Schemas {
		if _, ok := entries[sd.Name]; ok {
			return nil, errors.Errorf("schema '%s' declared twice", sd.Name)
		}
		e, err := sd.build()
		if err != nil {
			return nil, errors.Wrapf(err, "schema '%s'", sd.Name)
		}
		entries[sd.Name] = e
	}
	return entries, nil
}

func (sd SchemaDecl) build() (*Entry, error) {
	fields := make([]core.Field, 0, len(sd.Fields))
	for _, fd := range sd.Fields {
		k, err := core.ParseKind(fd.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "field '%s'", fd.Name)
		}
		fields = append(fields, core.Field{
			Name:     fd.Name,
			Kind:     k,
			Validate: fd.Validate,
			Excluded: fd.ExcludeQuery,
		})
	}

	s, err := core.NewSchema(sd.Name, sd.Collection, fields...)
	if err != nil {
		return nil, err
	}

	e := &Entry{Schema: s}
	for _, id := range sd.Indexes {
		if !s.Has(id.Field) {
			return nil, errors.Errorf("index on undeclared field '%s'", id.Field)
		}
		order := id.Order
		if order == 0 {
			order = 1
		}
		if order != 1 && order != -1 {
			return nil, errors.Errorf("index order on '%s' must be 1 or -1", id.Field)
		}

		io := options.Index().SetName(fmt.Sprintf("%s_%d", id.Field, order))
		if id.Unique {
			io.SetUnique(true)
		}
		if id.Sparse {
			io.SetSparse(true)
		}
		e.Indexes = append(e.Indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: id.Field, Value: order}},
			Options: io,
		})
	}
	return e, nil
}
