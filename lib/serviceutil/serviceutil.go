package serviceutil

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const (
	ExitOk          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// SignalContext returns a context that is cancelled on the first SIGINT or
// SIGTERM, so a run can stop without saving half of its work. A second signal
// exits right away.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		slog.Warn("interrupted, stopping (press ctrl+c again to exit now)")
		cancel()
		<-sigs
		os.Exit(ExitInterrupted)
	}()

	return ctx
}

// ExitCode maps the outcome of a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOk
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Fatal logs `err` and exits with its ExitCode. An interruption is not
// logged as an error.
func Fatal(message string, err error) {
	code := ExitCode(err)
	switch code {
	case ExitOk:
		slog.Error(message)
		code = ExitFailure
	case ExitInterrupted:
		slog.Warn(message, "err", "interrupted")
	default:
		slog.Error(message, "err", err.Error())
	}
	os.Exit(code)
}
