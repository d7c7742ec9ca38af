package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Ctrl-C during serve or logs -f surfaces as a cancelled context;
		// exit quietly in that case.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "fileforge: %v\n", err)
		}
		os.Exit(1)
	}
}
