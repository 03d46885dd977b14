package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/naiquevin/dupenukem/internal/finder"
	"github.com/naiquevin/dupenukem/internal/fsutil"
	"github.com/naiquevin/dupenukem/internal/hashcache"
	"github.com/naiquevin/dupenukem/internal/scanner"
	"github.com/naiquevin/dupenukem/internal/snapshot"
	"github.com/spf13/cobra"
)

type findOptions struct {
	excludes   []string
	quick      bool
	workers    int
	noProgress bool
	cacheFile  string
	output     string
}

func newFindCmd() *cobra.Command {
	opts := &findOptions{workers: runtime.NumCPU()}

	cmd := &cobra.Command{
		Use:   "find <root>",
		Short: "Scan a directory tree and emit a snapshot of duplicate files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withExitCode(exitIOFailure, runFind(cmd, args[0], opts))
		},
	}

	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "Exact path components or root-relative paths to exclude")
	cmd.Flags().BoolVar(&opts.quick, "quick", false, "Skip strong-hash confirmation, rely on the fast fingerprint alone")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel hashing workers")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to hash cache file (enables caching across runs)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the snapshot to this path instead of stdout")

	return cmd
}

func runFind(cmd *cobra.Command, rootArg string, opts *findOptions) error {
	root, err := fsutil.Canonicalize(rootArg)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}

	showProgress := !opts.noProgress
	errs := make(chan error, 100)
	go drainErrors(errs)
	defer close(errs)

	files, err := scanner.New(root, opts.excludes, showProgress, errs).Run()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	cache, err := hashcache.Open(opts.cacheFile)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	groups, err := finder.New(files, opts.quick, opts.workers, showProgress, errs, cache).Run()
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}

	snap, err := snapshot.FromGroups(root, groups, time.Now())
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.output, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	return snapshot.Write(out, snap)
}
