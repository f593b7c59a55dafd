// Package dialect renders MongoDB aggregation pipelines.
package dialect

import (
	"github.com/dosco/mongodoc/core/internal/sdata"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Pipeline collects aggregation stages in the order they are rendered.
type Pipeline struct {
	stages []bson.D
}

func (p *Pipeline) stage(name string, v any) {
	p.stages = append(p.stages, bson.D{{Key: name, Value: v}})
}

// Stages returns the rendered stages.
func (p *Pipeline) Stages() []bson.D {
	return p.stages
}

func (p *Pipeline) RenderMatch(filter bson.M) {
	if filter == nil {
		filter = bson.M{}
	}
	p.stage("$match", filter)
}

// RenderLookup renders the $lookup stage for l and, when requested, the
// $unwind stage right after it.
func (p *Pipeline) RenderLookup(main *sdata.Schema, l *Lookup) error {
	if err := l.validate(main); err != nil {
		return err
	}

	alias := l.Alias()
	p.stage("$lookup", bson.D{
		{Key: "from", Value: l.From.Collection},
		{Key: "localField", Value: l.LocalField},
		{Key: "foreignField", Value: l.ForeignField},
		{Key: "as", Value: alias},
	})

	if l.Unwind {
		p.stage("$unwind", bson.D{
			{Key: "path", Value: "$" + alias},
			{Key: "preserveNullAndEmptyArrays", Value: l.PreserveNullAndEmptyArrays},
		})
	}
	return nil
}

// RenderProject renders a $project stage. A nil project is derived from the
// main schema: every declared field plus the alias of every lookup.
func (p *Pipeline) RenderProject(main *sdata.Schema, project bson.M, lookups []*Lookup) {
	if project != nil {
		p.stage("$project", project)
		return
	}

	d := bson.D{}
	seen := map[string]struct{}{}
	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			d = append(d, bson.E{Key: k, Value: 1})
		}
	}
	for _, f := range main.Fields() {
		add(f.Name)
	}
	// an alias naming a declared field replaces that field
	for _, l := range lookups {
		add(l.Alias())
	}
	// _id is always returned by $project; an empty stage is rejected.
	if len(d) == 0 {
		d = append(d, bson.E{Key: sdata.IDField, Value: 1})
	}
	p.stage("$project", d)
}

func (p *Pipeline) RenderOrderBy(sort bson.D) {
	if len(sort) == 0 {
		sort = bson.D{{Key: sdata.IDField, Value: 1}}
	}
	p.stage("$sort", sort)
}

func (p *Pipeline) RenderLimit(skip, limit int64) {
	if skip > 0 {
		p.stage("$skip", skip)
	}
	if limit > 0 {
		p.stage("$limit", limit)
	}
}

// RenderGroup renders a $group stage keyed by id with the given
// accumulators.
func (p *Pipeline) RenderGroup(id any, acc ...bson.E) {
	d := bson.D{{Key: "_id", Value: id}}
	p.stage("$group", append(d, acc...))
}

// JoinQuery is everything needed to render a join aggregation.
type JoinQuery struct {
	Main    *sdata.Schema
	Filter  bson.M
	Join    Joiner
	Project bson.M
	Sort    bson.D
	Skip    int64
	Limit   int64
}

// RenderJoin renders $match, then $lookup (and $unwind) per lookup, then
// $project, $sort, and the optional $skip and $limit. It returns the
// lookups in pipeline order. Lookup validation happens here, before any
// stage reaches the server.
func RenderJoin(q JoinQuery) ([]bson.D, []*Lookup, error) {
	var p Pipeline
	var lookups []*Lookup

	if q.Join != nil {
		lookups = Combine(q.Join).Lookups()
	}

	p.RenderMatch(q.Filter)
	for _, l := range lookups {
		if err := p.RenderLookup(q.Main, l); err != nil {
			return nil, nil, err
		}
	}
	p.RenderProject(q.Main, q.Project, lookups)
	p.RenderOrderBy(q.Sort)
	p.RenderLimit(q.Skip, q.Limit)

	return p.Stages(), lookups, nil
}

// Accumulator names a $group accumulator applied to a field.
type Accumulator string

const (
	Sum Accumulator = "sum"
	Max Accumulator = "max"
	Min Accumulator = "min"
	Avg Accumulator = "avg"
)

// RenderCountBy renders a pipeline counting documents per distinct value of
// field.
func RenderCountBy(filter bson.M, field string) []bson.D {
	var p Pipeline
	p.RenderMatch(filter)
	p.RenderGroup("$"+field, bson.E{Key: "count", Value: bson.M{"$sum": 1}})
	return p.Stages()
}

// RenderDistinct renders a pipeline grouping on every distinct value of
// field.
func RenderDistinct(filter bson.M, field string) []bson.D {
	var p Pipeline
	p.RenderMatch(filter)
	p.RenderGroup("$" + field)
	return p.Stages()
}

// Total is one accumulator over one field. Its output key is field__op.
type Total struct {
	Field string
	Op    Accumulator
}

func (t Total) Key() string {
	return t.Field + "__" + string(t.Op)
}

// RenderTotals renders a pipeline folding the whole match into a single
// group holding every requested total.
func RenderTotals(filter bson.M, totals ...Total) []bson.D {
	var p Pipeline
	p.RenderMatch(filter)

	acc := make([]bson.E, 0, len(totals))
	for _, t := range totals {
		acc = append(acc, bson.E{Key: t.Key(), Value: bson.M{"$" + string(t.Op): "$" + t.Field}})
	}
	p.RenderGroup(nil, acc...)
	return p.Stages()
}
