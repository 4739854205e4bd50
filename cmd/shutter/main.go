// Shutter takes screenshots and routes them through plugin-provided
// processors and destinations.
package main

import (
	"os"

	"github.com/jmylchreest/shutter/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
