package main

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dosco/mongodoc/conf"
	"github.com/dosco/mongodoc/core"
	"github.com/dosco/mongodoc/internal/util"
	"github.com/dosco/mongodoc/mongodriver"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log      *zap.SugaredLogger
	config   *conf.Config
	conn     *mongodriver.Connector
	registry *conf.Registry
	cpath    string
	timeout  time.Duration
)

// Cmd is the entry point for the CLI
func Cmd() {
	log = util.NewLogger(false).Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "mongodoc",
		Short: BuildDetails(),
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	rootCmd.PersistentFlags().DurationVar(&timeout,
		"timeout", time.Minute, "give up on a command after this long")

	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(findCmd())
	rootCmd.AddCommand(countCmd())
	rootCmd.AddCommand(indexesCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

// setup reads the config for GO_ENV from cpath and swaps in the logger it
// describes
func setup(cpath string) {
	if config != nil {
		return
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		log.Fatal(err)
	}

	if config, err = conf.ReadInConfig(path.Join(cp, conf.GetConfigName())); err != nil {
		log.Fatal(err)
	}

	l, err := config.NewLogger()
	if err != nil {
		log.Fatal(err)
	}
	log = l.Sugar()
}

// initConn opens the connection and the schema registry
func initConn() {
	var err error

	if conn != nil {
		return
	}
	setup(cpath)

	if registry == nil {
		if registry, err = conf.LoadRegistry(config, log.Desugar()); err != nil {
			log.Fatalf("Failed to load schemas: %s", err)
		}
	}

	if conn, err = config.Connect(log.Desugar()); err != nil {
		log.Fatalf("Failed to connect to database: %s", err)
	}
}

// model returns an untyped model for the schema named name
func model(name string) *core.Model[bson.M] {
	initConn()

	s, ok := registry.Schema(name)
	if !ok {
		log.Fatalf("Unknown schema '%s', declared schemas: %v", name, registry.Names())
	}

	m, err := core.NewModel[bson.M](s, conn, config.ModelOptions(log.Desugar())...)
	if err != nil {
		log.Fatal(err)
	}
	return m
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func closeConn() {
	if conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn.Close(ctx) //nolint:errcheck
}

func exit(code int) {
	closeConn()
	os.Exit(code)
}
