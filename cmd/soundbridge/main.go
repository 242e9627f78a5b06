package main

import (
	"os"

	"github.com/joho/godotenv"

	"soundbridge.dev/internal/cli"
)

func main() {
	// Pick up SOUNDBRIDGE_* overrides from a local .env file; a missing
	// file is the normal case
	_ = godotenv.Load()

	// Create CLI instance and run with system arguments and I/O
	c := cli.NewCLI()
	exitCode := c.Run(os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}
