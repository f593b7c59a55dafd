package main

import (
	"fmt"

	"github.com/dosco/mongodoc/core"
	"github.com/spf13/cobra"
)

var (
	indexDesc   bool
	indexUnique bool
	indexSparse bool
)

func indexesCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "indexes",
		Short: "Manage collection indexes",
	}

	c.AddCommand(&cobra.Command{
		Use:   "list <schema>",
		Short: "List the indexes of a collection",
		Args:  cobra.ExactArgs(1),
		Run:   cmdIndexList,
	})

	add := &cobra.Command{
		Use:   "add <schema> <field>",
		Short: "Create a single field index",
		Args:  cobra.ExactArgs(2),
		Run:   cmdIndexAdd,
	}
	add.Flags().BoolVar(&indexDesc, "desc", false, "Descending order")
	add.Flags().BoolVar(&indexUnique, "unique", false, "Unique index")
	add.Flags().BoolVar(&indexSparse, "sparse", false, "Sparse index")
	c.AddCommand(add)

	c.AddCommand(&cobra.Command{
		Use:   "drop <schema> <field>",
		Short: "Drop every index on a field",
		Args:  cobra.ExactArgs(2),
		Run:   cmdIndexDrop,
	})

	c.AddCommand(&cobra.Command{
		Use:   "sync [schema...]",
		Short: "Make collection indexes match the schema file",
		Long: `Create the indexes declared in the schema file and drop the ones
that are not declared. Without arguments every declared schema is synced.`,
		Run: cmdIndexSync,
	})
	return c
}

func cmdIndexList(cmd *cobra.Command, args []string) {
	m := model(args[0])
	defer closeConn()

	ctx, cancel := cmdContext()
	defer cancel()

	list, err := m.CheckIndexes(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, ix := range list {
		fmt.Printf("%s\t%s\n", ix.Name, extJSON(ix.Key))
	}
}

func cmdIndexAdd(cmd *cobra.Command, args []string) {
	m := model(args[0])
	defer closeConn()

	order := 1
	if indexDesc {
		order = -1
	}
	var opts []core.IndexOption
	if indexUnique {
		opts = append(opts, core.Unique())
	}
	if indexSparse {
		opts = append(opts, core.Sparse())
	}

	ctx, cancel := cmdContext()
	defer cancel()

	name, err := m.AddIndex(ctx, args[1], order, opts...)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Created index: %s", name)
}

func cmdIndexDrop(cmd *cobra.Command, args []string) {
	m := model(args[0])
	defer closeConn()

	ctx, cancel := cmdContext()
	defer cancel()

	names, err := m.DropIndex(ctx, args[1])
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Dropped indexes: %v", names)
}

func cmdIndexSync(cmd *cobra.Command, args []string) {
	initConn()
	defer closeConn()

	if len(args) == 0 {
		args = registry.Names()
	}

	ctx, cancel := cmdContext()
	defer cancel()

	for _, name := range args {
		e, ok := registry.Entry(name)
		if !ok {
			log.Fatalf("Unknown schema '%s', declared schemas: %v", name, registry.Names())
		}
		if err := model(name).SyncIndexes(ctx, e.Indexes...); err != nil {
			log.Fatalf("Failed to sync indexes of '%s': %s", name, err)
		}
		log.Infof("Synced %d indexes on %s", len(e.Indexes), e.Schema.Collection)
	}
}
