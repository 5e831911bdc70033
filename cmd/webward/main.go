package main

import (
	"os"

	"github.com/webward/webward/cmd/webward/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
