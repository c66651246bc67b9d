// Package main is the entry point for the nodecast application.
package main

import (
	"os"

	"github.com/zyp1690/nodecast-tv/cmd/nodecast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
