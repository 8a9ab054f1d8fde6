// Command crab drives the order event log from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/LucaXiang/Crab-sub002/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
