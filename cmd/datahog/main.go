// Command datahog ingests sources into a transaction log and queries the
// graph rebuilt from it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/datahog/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "datahog: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
