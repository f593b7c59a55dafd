package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dosco/mongodoc/conf"
	"github.com/dosco/mongodoc/core"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	testVerbose bool
	testJSON    bool
)

// TestResult holds the overall test results
type TestResult struct {
	Success  bool          `json:"success"`
	Checks   []CheckStatus `json:"checks"`
	Error    string        `json:"error,omitempty"`
	Duration string        `json:"duration"`
}

// CheckStatus holds the status of a single check
type CheckStatus struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Note    string `json:"note,omitempty"`
}

func testCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "test",
		Short: "Validate config and schemas and test the database connection",
		Long: `Validate the configuration and test the configured services:
- Config file
- Schema file
- Database connection and server version
- Indexes of every declared schema

Exit codes:
  0 - All checks passed
  1 - Configuration, schema or connection check failed`,
		Run: cmdTest,
	}
	c.Flags().BoolVarP(&testVerbose, "verbose", "v", false, "Show detailed output for each check")
	c.Flags().BoolVar(&testJSON, "json", false, "Output results in JSON format")
	return c
}

func cmdTest(cmd *cobra.Command, args []string) {
	startTime := time.Now()
	var checks []CheckStatus

	// Step 1: Load configuration
	setup(cpath)
	checks = append(checks, CheckStatus{
		Name:   "config",
		Type:   "yaml",
		Status: "ok",
		Note:   config.ConfigPath,
	})

	// Step 2: Load schemas
	r, err := conf.LoadRegistry(config, log.Desugar())
	if err != nil {
		checks = append(checks, CheckStatus{Name: "schemas", Type: "yaml", Status: "failed", Note: err.Error()})
		outputFailure(err, checks, startTime)
		exit(1)
	}
	checks = append(checks, CheckStatus{
		Name:   "schemas",
		Type:   "yaml",
		Status: "ok",
		Note:   fmt.Sprintf("%v", r.Names()),
	})
	registry = r

	// Step 3: Connect
	initConn()

	ctx, cancel := cmdContext()
	defer cancel()

	start := time.Now()
	if err := conn.Ping(ctx); err != nil {
		checks = append(checks, CheckStatus{Name: "database", Type: "mongodb", Status: "failed", Note: err.Error()})
		outputFailure(err, checks, startTime)
		exit(1)
	}
	checks = append(checks, CheckStatus{
		Name:    "database",
		Type:    "mongodb",
		Status:  "ok",
		Latency: time.Since(start).String(),
		Note:    config.Mongo.Database,
	})

	// Step 4: Server version
	info, err := conn.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}})
	if err != nil {
		checks = append(checks, CheckStatus{Name: "server", Type: "mongodb", Status: "failed", Note: err.Error()})
		outputFailure(err, checks, startTime)
		exit(1)
	}
	checks = append(checks, CheckStatus{
		Name:   "server",
		Type:   "mongodb",
		Status: "ok",
		Note:   fmt.Sprintf("version %v", info["version"]),
	})

	// Step 5: Check declared indexes exist
	results, err := testIndexes(ctx, r)
	checks = append(checks, results...)
	if err != nil {
		outputFailure(err, checks, startTime)
		exit(1)
	}

	outputSuccess(checks, startTime)
	closeConn()
}

// testIndexes reports declared indexes that are missing on the server
func testIndexes(ctx context.Context, r *conf.Registry) ([]CheckStatus, error) {
	var results []CheckStatus

	for _, name := range r.Names() {
		e, _ := r.Entry(name)
		start := time.Now()

		m, err := core.NewModel[bson.M](e.Schema, conn, config.ModelOptions(log.Desugar())...)
		if err != nil {
			return results, err
		}

		list, err := m.CheckIndexes(ctx)
		if err != nil {
			results = append(results, CheckStatus{
				Name:   "indexes:" + name,
				Type:   e.Schema.Collection,
				Status: "failed",
				Note:   err.Error(),
			})
			return results, fmt.Errorf("indexes of '%s': %w", name, err)
		}

		have := make(map[string]bool, len(list))
		for _, ix := range list {
			have[ix.Name] = true
		}

		var missing []string
		for _, n := range e.IndexNames() {
			if !have[n] {
				missing = append(missing, n)
			}
		}

		cs := CheckStatus{
			Name:    "indexes:" + name,
			Type:    e.Schema.Collection,
			Status:  "ok",
			Latency: time.Since(start).String(),
		}
		if len(missing) != 0 {
			cs.Note = fmt.Sprintf("missing %v, run indexes sync", missing)
		}
		results = append(results, cs)
	}

	return results, nil
}

func outputSuccess(checks []CheckStatus, start time.Time) {
	result := TestResult{
		Success:  true,
		Checks:   checks,
		Duration: time.Since(start).String(),
	}
	outputResult(result)
}

func outputFailure(err error, checks []CheckStatus, start time.Time) {
	result := TestResult{
		Success:  false,
		Checks:   checks,
		Error:    err.Error(),
		Duration: time.Since(start).String(),
	}
	outputResult(result)
}

func outputResult(result TestResult) {
	if testJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return
	}

	// Text output
	fmt.Println()
	for _, c := range result.Checks {
		status := "OK"
		if c.Status == "failed" {
			status = "FAILED"
		}
		line := fmt.Sprintf("  %s (%s): %s", c.Name, c.Type, status)
		if c.Latency != "" && testVerbose {
			line += fmt.Sprintf(" [%s]", c.Latency)
		}
		if c.Note != "" {
			if c.Status == "failed" || testVerbose {
				line += fmt.Sprintf(" - %s", c.Note)
			}
		}
		fmt.Println(line)
	}
	fmt.Println()

	if result.Success {
		fmt.Printf("All checks passed (%s)\n", result.Duration)
	} else {
		fmt.Printf("Validation failed: %s (%s)\n", result.Error, result.Duration)
	}
}
