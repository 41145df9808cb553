// Command evsync validates policy catalogs, runs synchronization scenarios
// and inspects journaled traces.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/evsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
