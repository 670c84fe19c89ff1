// Command anchorsim drives the anchor pipeline against the in-process
// native simulator: replay YAML scenarios, inspect recorded telemetry and
// run a live frame loop behind a gRPC health endpoint.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
