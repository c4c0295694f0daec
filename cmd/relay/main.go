// Package main is the entry point for the relay CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/runoshun/relay/internal/app"
	"github.com/runoshun/relay/internal/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := cli.NewRootCommand(app.New, version)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exit *cli.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}
