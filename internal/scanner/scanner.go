// Package scanner performs the breadth-first filesystem walk that discovers
// regular files (and records, but never follows, symlinks) beneath a single
// root directory.
//
// # Why sequential?
//
// This scanner walks one directory at a time on a single goroutine rather
// than fanning out across workers: scanning is kept strictly sequential, and
// only the duplicate finder's hashing stages parallelize. A plain FIFO queue
// of pending directories gives breadth-first order directly, with no
// synchronization to reason about.
//
// # Exclusions
//
// The exclusion set holds exact names: either a bare path component (e.g.
// "node_modules", matched against any directory/file name at any depth) or
// a full path relative to the scan root (e.g. "build/tmp"). There is no
// glob support — pattern/glob exclusions are out of scope.
// A matching entry, directory or file, is skipped along with everything
// beneath it.
package scanner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/naiquevin/dupenukem/internal/progress"
	"github.com/naiquevin/dupenukem/internal/types"
)

// Scanner walks a root directory and reports regular files and symlinks.
//
// Designed for single use: create with New, call Run once.
type Scanner struct {
	root         string
	excludes     map[string]struct{}
	showProgress bool
	errCh        chan error
}

// New creates a Scanner rooted at root. excludes holds exact path components
// or root-relative paths to skip; errCh receives non-fatal per-entry I/O
// errors and may be nil.
func New(root string, excludes []string, showProgress bool, errCh chan error) *Scanner {
	set := make(map[string]struct{}, len(excludes))
	for _, e := range excludes {
		set[filepath.Clean(e)] = struct{}{}
	}
	return &Scanner{root: root, excludes: set, showProgress: showProgress, errCh: errCh}
}

// stats tracks scan progress for the progress bar.
type stats struct {
	scannedFiles int64
	scannedBytes int64
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d files (%s) in %.1fs",
		s.scannedFiles, humanize.IBytes(uint64(s.scannedBytes)), time.Since(s.startTime).Seconds())
}

// Run walks the root directory breadth-first and returns every regular file
// and symlink found. Entries that cannot be stat'd or whose directory cannot
// be read are reported on errCh (if non-nil) and skipped; the walk
// continues.
func (s *Scanner) Run() ([]*types.FileEntry, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", s.root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	bar := progress.New(s.showProgress, -1)
	st := &stats{startTime: time.Now()}
	bar.Describe(st)

	var results []*types.FileEntry
	queue := []string{root}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := readDirSorted(dir)
		if err != nil {
			s.sendError(fmt.Errorf("read dir %s: %w", dir, err))
			continue
		}

		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if s.isExcluded(root, full, entry.Name()) {
				continue
			}

			if entry.IsDir() {
				queue = append(queue, full)
				continue
			}

			fe, err := s.describe(full, entry)
			if err != nil {
				s.sendError(fmt.Errorf("%s: %w", full, err))
				continue
			}
			if fe == nil {
				continue // device, socket, etc. — not interesting
			}

			results = append(results, fe)
			st.scannedFiles++
			st.scannedBytes += fe.Size
			bar.Describe(st)
		}
	}

	bar.Finish(st)
	return results, nil
}

// describe classifies a single directory entry into a FileEntry, or returns
// (nil, nil) for entries this engine does not model (devices, sockets, ...).
func (s *Scanner) describe(full string, entry os.DirEntry) (*types.FileEntry, error) {
	if entry.Type()&os.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return nil, err
		}
		return &types.FileEntry{Path: full, Kind: types.Symlink, Target: target}, nil
	}

	if !entry.Type().IsRegular() {
		return nil, nil
	}

	info, err := entry.Info()
	if err != nil {
		return nil, err
	}
	return &types.FileEntry{Path: full, Size: info.Size(), Kind: types.Regular}, nil
}

// isExcluded reports whether full matches the exclusion set, either by bare
// name or by path relative to root.
func (s *Scanner) isExcluded(root, full, name string) bool {
	if len(s.excludes) == 0 {
		return false
	}
	if _, ok := s.excludes[name]; ok {
		return true
	}
	if rel, err := filepath.Rel(root, full); err == nil {
		if _, ok := s.excludes[filepath.Clean(rel)]; ok {
			return true
		}
	}
	return false
}

func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}

// readDirSorted reads a directory's entries and returns them sorted by name,
// batching reads so large directories do not require unbounded memory for
// the read itself.
func readDirSorted(dir string) ([]os.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []os.DirEntry
	const batchSize = 1000
	for {
		batch, err := f.ReadDir(batchSize)
		entries = append(entries, batch...)
		if err != nil {
			if err == io.EOF {
				break
			}
			return entries, err
		}
		if len(batch) == 0 {
			break
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
