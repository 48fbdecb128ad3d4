// Command grouper is the local grouping CLI.
package main

import (
	"os"

	"github.com/rafaeljc/grouper/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
