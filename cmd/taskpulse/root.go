package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK       = 0
	exitConfig   = 2
	exitLoad     = 3
	exitConflict = 4
	exitNotFound = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

type globalFlags struct {
	fixture string
	viewer  int64
	at      string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "taskpulse",
		Short:         "Task analytics, manager hierarchy and live timer durations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.fixture, "fixture", "", "read roster, tasks and timers from a YAML fixture instead of the task API")
	cmd.PersistentFlags().Int64Var(&g.viewer, "viewer", 0, "person id timers are tracked for (overrides VIEWER_ID)")
	cmd.PersistentFlags().StringVar(&g.at, "at", "", "evaluate delays as of this RFC3339 instant (fixture mode only)")

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newHierarchyCmd(g))
	cmd.AddCommand(newDelaysCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newTimerCmd(g))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
