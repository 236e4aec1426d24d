// File: cmd/storewalk/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/storewalk/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"journey failed", fmt.Errorf("%w: 1 of 3", cmd.ErrJourneysFailed), exitJourneyFail},
		{"interrupted", fmt.Errorf("run: %w", context.Canceled), exitInterrupted},
		{"other", errors.New("failed to initialize browser"), exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes the panic log", func(t *testing.T) {
		var (
			written  []byte
			path     string
			exitWith = -1
		)
		osWriteFile = func(name string, data []byte, _ os.FileMode) error {
			path, written = name, data
			return nil
		}
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(written), "panic: boom")
		assert.Contains(t, string(written), "goroutine", "stack trace is logged")
		assert.Equal(t, exitError, exitWith)
	})

	t.Run("falls back to stderr", func(t *testing.T) {
		exitWith := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only file system") }
		osExit = func(code int) { exitWith = code }

		require.NotPanics(t, func() {
			defer handlePanic()
			panic("boom")
		})
		assert.Equal(t, exitError, exitWith)
	})

	t.Run("no panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}
