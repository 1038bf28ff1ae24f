// Command provisioner resolves placements and provisions campaign briefs
// against the ad server, either once from the command line or as an HTTP
// service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
