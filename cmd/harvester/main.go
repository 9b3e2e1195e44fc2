package main

import (
	"os"

	"github.com/ricirt/job-harvester/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
