// Command docstorectl is the operator CLI for a docstore record store: it
// exposes the verify, compact, and recover maintenance operations as cobra
// subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/docstore/cmd/docstorectl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
