// Command lens compiles BI data requests into query plans and runs them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lens/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lens: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
