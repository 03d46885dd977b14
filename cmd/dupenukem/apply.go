package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/naiquevin/dupenukem/internal/applier"
	"github.com/naiquevin/dupenukem/internal/snapshot"
	"github.com/naiquevin/dupenukem/internal/validator"
	"github.com/spf13/cobra"
)

type applyOptions struct {
	dryRun     bool
	yes        bool
	quick      bool
	backupRoot string
}

func newApplyCmd() *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply <snapshot-file>",
		Short: "Execute the actions recorded in a validated snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "Preview actions without mutating the filesystem")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&opts.quick, "quick", false, "The snapshot was produced in quick mode; skip strong-hash checks")
	cmd.Flags().StringVar(&opts.backupRoot, "backup-dir", "", "Override the backup root (default: <home>/.dupenukem/backups)")

	return cmd
}

func runApply(cmd *cobra.Command, path string, opts *applyOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return withExitCode(exitIOFailure, fmt.Errorf("open %s: %w", path, err))
	}
	defer func() { _ = f.Close() }()

	snap, err := snapshot.Parse(f)
	if err != nil {
		return withExitCode(exitValidationFailure, fmt.Errorf("parse %s: %w", path, err))
	}

	preReport, err := validator.New(opts.quick).Validate(snap)
	if err != nil {
		return withExitCode(exitIOFailure, err)
	}
	if len(preReport.Issues) > 0 {
		out := cmd.OutOrStdout()
		for _, issue := range preReport.Issues {
			fmt.Fprintf(out, "  issue: %s\n", issue.Error())
		}
		return withExitCode(exitValidationFailure, fmt.Errorf("validation found %d issue(s), refusing to apply", len(preReport.Issues)))
	}
	if preReport.PendingCount == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to do: every action is already satisfied")
		return nil
	}

	if !opts.dryRun && !opts.yes {
		ok, err := confirm(cmd.InOrStdin(), fmt.Sprintf("Apply %d pending action(s)?", preReport.PendingCount))
		if err != nil {
			return withExitCode(exitIOFailure, err)
		}
		if !ok {
			return withExitCode(exitUserAbort, fmt.Errorf("user declined confirmation"))
		}
	}

	mode := applier.Execute
	if opts.dryRun {
		mode = applier.DryRun
	}
	a, err := applier.New(mode, opts.backupRoot, opts.quick)
	if err != nil {
		return withExitCode(exitIOFailure, err)
	}

	report, err := a.Apply(snap)
	if err != nil {
		return withExitCode(exitValidationFailure, fmt.Errorf("apply: %w", err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "applied: %d, skipped: %d, freed: %s\n",
		report.AppliedCount, report.SkippedCount, humanize.IBytes(uint64(report.FreedBytes)))
	return nil
}
