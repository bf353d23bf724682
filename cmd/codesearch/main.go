package main

import (
	"fmt"
	"os"

	"github.com/jamaly87/codebase-semantic-search/cmd/codesearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
