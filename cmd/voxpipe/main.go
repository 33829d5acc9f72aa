// SPDX-License-Identifier: MIT

// voxpipe drives a corpus of interview recordings through audio extraction,
// transcription and multi-language translation, tracking every stage in an
// embedded SQLite store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skeidel/voxpipe/internal/log"
	"github.com/skeidel/voxpipe/internal/version"
)

// Exit codes: 0 success, 1 recoverable (some items failed but the pipeline
// ran), 2 fatal configuration or store error.
const (
	exitOK          = 0
	exitRecoverable = 1
	exitFatal       = 2
)

// exitError carries a process exit code through cobra's RunE chain.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fatal(err error) error       { return &exitError{code: exitFatal, err: err} }
func recoverable(err error) error { return &exitError{code: exitRecoverable, err: err} }

var configPath string

func main() {
	os.Exit(run())
}

func run() int {
	// Best-effort: credentials commonly live in a local .env.
	_ = godotenv.Load()

	log.Configure(log.Config{Service: "voxpipe"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "error:", ee.err)
			return ee.code
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitFatal
	}
	return exitOK
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "voxpipe",
		Short:         "Batch pipeline for transcribing and translating interview recordings",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	root.AddCommand(
		newStatusCmd(),
		newMonitorCmd(),
		newRestartCmd(),
		newStartCmd(),
		newRetryCmd(),
		newSpecialCmd(),
		newFixCmd(),
		newVerifyCmd(),
		newScanCmd(),
		newAddCmd(),
	)
	return root
}
