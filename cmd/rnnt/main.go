// Package main provides the rnnt training-step CLI.
//
// Usage:
//
//	rnnt [flags] <command>
//
// Commands:
//
//	step          - run training forward steps over synthetic batches
//	eval          - run an evaluation step and report error rates
//	collect-feats - run feature collection for statistics
package main

import (
	"fmt"
	"os"

	"github.com/ieee0824/rnnt-go/cmd/rnnt/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
