// Command scribe is the operator CLI for the transcription pipeline: it
// submits media items, inspects queue state, and manages dead letters.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "scribe: %v\n", err)
		os.Exit(1)
	}
}
