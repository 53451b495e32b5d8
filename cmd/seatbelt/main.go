// Command seatbelt applies a lint error ratchet to ESLint-style reports.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/seatbelt/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err == nil {
		return
	}

	// Lint and scenario failures are rendered by the command itself.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || (!exitErr.Reported && exitErr.Code != cli.ExitFailure) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cli.GetExitCode(err))
}
