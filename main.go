package main

import (
	"errors"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Partial failures printed their own details; only set the exit code.
		if errors.Is(err, errPartialFailure) {
			os.Exit(1)
		}

		exitOnError(err)
	}
}
