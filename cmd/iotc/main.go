// Package main is the entry point for the iotc CLI.
package main

import (
	"os"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/cli"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
//
//nolint:gochecknoglobals // link-time build metadata
var (
	version string
	commit  string
	date    string
)

func main() {
	err := cli.Execute(cli.BuildInfo{Version: version, Commit: commit, Date: date})
	os.Exit(cli.ExitCode(err))
}
