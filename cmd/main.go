package main

import (
	"os"

	"gitlab.com/proxygrid.net/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
