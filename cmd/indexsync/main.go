package main

import (
	"os"

	"github.com/kilupskalvis/indexsync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
