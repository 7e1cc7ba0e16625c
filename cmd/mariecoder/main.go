// Package main provides the entry point for the mariecoder CLI.
package main

import (
	"context"
	"os"

	"github.com/CardSorting/MarieCoder-sub006/internal/cli"
)

// Build information set via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	ctx := context.Background()

	info := cli.BuildInfo{Version: version, Commit: commit, Date: date}
	err := cli.Execute(ctx, info)
	cli.CloseLogFile()
	if err != nil {
		os.Exit(1)
	}
}
