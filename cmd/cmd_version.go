package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(BuildDetails())
		},
	}
}

// BuildDetails returns the version, commit and build date set at link time
func BuildDetails() string {
	if version == "" {
		return fmt.Sprintf(`mongodoc (unknown version)
For documentation, visit https://github.com/dosco/mongodoc

To build with version information please use the Makefile
> git clone https://github.com/dosco/mongodoc
> cd mongodoc && make install

Go version: %s
`, runtime.Version())
	}

	return fmt.Sprintf(`mongodoc %s
For documentation, visit https://github.com/dosco/mongodoc

Commit SHA-1 : %s
Commit timestamp : %s
Go version : %s

Licensed under the Apache Public License 2.0
Copyright 2024, Vikram Rangnekar
`,
		version,
		commit,
		date,
		runtime.Version())
}
