// viforest - file exchange with tablet devices over the local network.
//
// Build with:
//
//	go build -ldflags "-X github.com/viforest/viforest/internal/version.Version=v0.1.0" ./cmd/viforest
package main

import (
	"os"

	"github.com/viforest/viforest/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
