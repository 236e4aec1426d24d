// File: cmd/storewalk/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/storewalk/cmd"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

const panicLogFile = "storewalk-panic.log"

// Exit codes.
const (
	exitOK          = 0
	exitJourneyFail = 1
	exitError       = 2
	exitInterrupted = 130
)

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

// main is the entry point of the application.
func main() {
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	observability.Sync()
	osExit(exitCode(err))
}

// exitCode maps the command error onto the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, cmd.ErrJourneysFailed):
		return exitJourneyFail
	default:
		return exitError
	}
}

// handlePanic records an unexpected panic with its stack before exiting.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	// Ensure logs are flushed before proceeding.
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(exitError)
		return
	}
	fmt.Fprintf(os.Stderr, "storewalk crashed; details logged to %s\n", panicLogFile)
	osExit(exitError)
}
