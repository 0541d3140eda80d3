// glc - GigLine chat client
//
// Lists the conversations an identity can chat on, shows their history,
// sends messages, and follows them live over the server's event stream.
package main

import (
	"fmt"
	"os"

	"github.com/gigline/glc/internal/commands"
)

// Version information (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
