// Command taskctl manages a task list from the terminal.
package main

import (
	"os"

	"tasklist/internal/cli"
)

func main() {
	if err := cli.Execute(cli.NewRootCommand()); err != nil {
		os.Exit(1)
	}
}
