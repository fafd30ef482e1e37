package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"c3ffi/internal/cli"
)

// main canonicalizes all CLI inputs into a CLIInvocation before any build
// logic runs.
func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	inv, err := cli.ParseInvocation(os.Args[1:], wd)
	if err != nil {
		var invErr *cli.InvocationError
		if errors.As(err, &invErr) {
			fmt.Fprintln(os.Stderr, invErr.Message)
			os.Exit(invErr.ExitCode)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitInternalError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, execErr := cli.Execute(ctx, inv, cli.Env{})
	stop()
	if execErr != nil && result.ExitCode != cli.ExitBuildFailure {
		// Build failures were already rendered with their diagnostics.
		fmt.Fprintln(os.Stderr, execErr)
	}
	os.Exit(result.ExitCode)
}
