// Package main provides the entry point for the rerankd CLI.
package main

import (
	"fmt"
	"os"

	"github.com/knowbase/rerankd/cmd/rerankd/cmd"
	"github.com/knowbase/rerankd/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
