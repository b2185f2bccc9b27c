// Command hybridtm is the CLI for the hybrid translation memory engine.
package main

import (
	"fmt"
	"os"

	"github.com/rmraya/hybridtm/cmd/hybridtm/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
