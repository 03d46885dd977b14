package main

import (
	"fmt"
	"os"

	"github.com/naiquevin/dupenukem/internal/snapshot"
	"github.com/naiquevin/dupenukem/internal/validator"
	"github.com/spf13/cobra"
)

type validateOptions struct {
	quick bool
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <snapshot-file>",
		Short: "Check an edited snapshot against the current filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.quick, "quick", false, "The snapshot was produced in quick mode; skip strong-hash checks")

	return cmd
}

func runValidate(cmd *cobra.Command, path string, opts *validateOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return withExitCode(exitIOFailure, fmt.Errorf("open %s: %w", path, err))
	}
	defer func() { _ = f.Close() }()

	snap, err := snapshot.Parse(f)
	if err != nil {
		return withExitCode(exitValidationFailure, fmt.Errorf("parse %s: %w", path, err))
	}

	report, err := validator.New(opts.quick).Validate(snap)
	if err != nil {
		return withExitCode(exitIOFailure, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pending: %d\n", report.PendingCount)
	for _, issue := range report.Issues {
		fmt.Fprintf(out, "  issue: %s\n", issue.Error())
	}

	if len(report.Issues) > 0 {
		return withExitCode(exitValidationFailure, fmt.Errorf("validation found %d issue(s)", len(report.Issues)))
	}
	return nil
}
