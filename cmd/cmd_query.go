package main

import (
	"fmt"
	"strings"

	"github.com/dosco/mongodoc/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	queryLimit   int64
	querySkip    int64
	querySort    []string
	queryProject []string
	queryUpdate  bool
)

const filterHelp = `Filters are JSON objects of lookup keys, for example
  '{"age__gte": 18, "name__startswith": "A"}'
Passing more than one filter matches documents matching any of them.`

func compileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compile <schema> [filter...]",
		Short: "Print the query document a filter compiles to",
		Long:  "Print the query document a filter compiles to.\n\n" + filterHelp,
		Args:  cobra.MinimumNArgs(1),
		Run:   cmdCompile,
	}
	c.Flags().BoolVar(&queryUpdate, "update", false,
		"Compile an update: print the filter and the update document")
	return c
}

func findCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "find <schema> [filter...]",
		Short: "Find documents",
		Long:  "Find documents and print them as extended JSON, one per line.\n\n" + filterHelp,
		Args:  cobra.MinimumNArgs(1),
		Run:   cmdFind,
	}
	c.Flags().Int64Var(&queryLimit, "limit", 20, "Return at most this many documents")
	c.Flags().Int64Var(&querySkip, "skip", 0, "Skip this many documents")
	c.Flags().StringSliceVar(&querySort, "sort", nil,
		"Sort fields, prefix a field with - for descending order")
	c.Flags().StringSliceVar(&queryProject, "project", nil, "Only return these fields")
	return c
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count <schema> [filter...]",
		Short: "Count documents",
		Long:  "Count documents matching the filters.\n\n" + filterHelp,
		Args:  cobra.MinimumNArgs(1),
		Run:   cmdCount,
	}
}

func cmdCompile(cmd *cobra.Command, args []string) {
	m := model(args[0])
	defer closeConn()

	if queryUpdate {
		if len(args) != 2 {
			log.Fatal("an update takes exactly one filter")
		}
		f, err := parseFilter(args[1])
		if err != nil {
			log.Fatal(err)
		}
		filter, update, err := m.CompileUpdate(f)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("filter: %s\nupdate: %s\n", extJSON(filter), extJSON(update))
		return
	}

	f, opts, err := parseFilters(args[1:])
	if err != nil {
		log.Fatal(err)
	}

	doc, err := m.CompileFilter(f, opts...)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(extJSON(doc))
}

func cmdFind(cmd *cobra.Command, args []string) {
	m := model(args[0])
	defer closeConn()

	f, opts, err := parseFilters(args[1:])
	if err != nil {
		log.Fatal(err)
	}
	opts = append(opts, core.Limit(queryLimit), core.Skip(querySkip))

	for _, s := range querySort {
		if field, ok := strings.CutPrefix(s, "-"); ok {
			opts = append(opts, core.Sort(-1, field))
		} else {
			opts = append(opts, core.Sort(1, s))
		}
	}
	if len(queryProject) != 0 {
		opts = append(opts, core.Project(queryProject...))
	}

	ctx, cancel := cmdContext()
	defer cancel()

	rs, err := m.Find(ctx, f, opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer rs.Close(ctx) //nolint:errcheck

	n := 0
	for rs.Next(ctx) {
		fmt.Println(rs.Record().Raw.String())
		n++
	}
	if err := rs.Err(); err != nil {
		log.Fatal(err)
	}
	log.Debugf("%d documents", n)
}

func cmdCount(cmd *cobra.Command, args []string) {
	m := model(args[0])
	defer closeConn()

	f, opts, err := parseFilters(args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := cmdContext()
	defer cancel()

	n, err := m.Count(ctx, f, opts...)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(n)
}

// parseFilters turns command line filters into a keyword filter, or into a
// disjunction passed with Where when there is more than one.
func parseFilters(args []string) (core.Filter, []core.QueryOption, error) {
	switch len(args) {
	case 0:
		return core.Filter{}, nil, nil
	case 1:
		f, err := parseFilter(args[0])
		return f, nil, err
	}

	var q *core.Query
	for _, a := range args {
		f, err := parseFilter(a)
		if err != nil {
			return nil, nil, err
		}
		if q == nil {
			q = core.Q(f)
		} else {
			q = q.Or(core.Q(f))
		}
	}
	return nil, []core.QueryOption{core.Where(q)}, nil
}

func parseFilter(s string) (core.Filter, error) {
	var f bson.M
	if err := bson.UnmarshalExtJSON([]byte(s), false, &f); err != nil {
		return nil, errors.Wrapf(err, "filter %s", s)
	}
	return core.Filter(f), nil
}

func extJSON(doc any) string {
	b, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(b)
}
