package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

// Exit codes per the command surface's recommended contract: 0 success,
// 1 validation failure, 2 I/O failure, 3 user declined confirmation.
const (
	exitSuccess = iota
	exitValidationFailure
	exitIOFailure
	exitUserAbort
)

func run() int {
	root := &cobra.Command{
		Use:     "dupenukem",
		Short:   "Find, review, and resolve duplicate files",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newFindCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newApplyCmd())

	if err := root.Execute(); err != nil {
		if code, ok := err.(exitCoder); ok {
			return code.ExitCode()
		}
		return exitIOFailure
	}
	return exitSuccess
}

// exitCoder lets a subcommand's RunE attach a specific exit code to an
// error without main() needing to know about that command's internals.
type exitCoder interface {
	error
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}
