package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cgerrors "changeguard/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && code != cgerrors.ExitThreshold {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(code)
}

// thresholdError reports that the run completed and met the fail-on threshold
type thresholdError struct {
	verdict string
	failOn  string
}

func (e *thresholdError) Error() string {
	return fmt.Sprintf("%s (fail-on %s)", e.verdict, e.failOn)
}

func exitCode(err error) int {
	var te *thresholdError
	if errors.As(err, &te) {
		return cgerrors.ExitThreshold
	}
	return cgerrors.ExitCode(err)
}
