// Package main is the entry point of the embedbot CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"embedbot/cmd/embedbot/commands"
	"embedbot/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		var missing *config.MissingTokenError
		if errors.As(err, &missing) {
			fmt.Fprintln(os.Stderr, missing.Error())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
