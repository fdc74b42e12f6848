// Command dryrun operates the virtual record store behind policy dry runs.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashgraph/guardian-sub011/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands render their own failures; report only the rest.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Err == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
