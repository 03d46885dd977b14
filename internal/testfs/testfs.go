// Package testfs provides a small file-tree builder and assertion DSL for
// integration tests: declare a tree, sow it onto disk, run the tool under
// test, then assert the result. It works against a single root directory
// with plain file/symlink entries, since this engine never creates hardlinks
// or spans multiple devices.
package testfs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// FileTree describes a filesystem state beneath a single root, used for
// both setup (Sow) and verification (Assert).
type FileTree struct {
	Files    []File
	Symlinks []Symlink
}

// File is a regular file's path (relative to the root) and content.
type File struct {
	Path    string
	Content string
}

// Symlink is a symbolic link's path (relative to the root) and its literal
// target string, exactly as it should appear via readlink.
type Symlink struct {
	Path   string
	Target string
}

// Harness owns a temporary root directory for one test.
type Harness struct {
	t    *testing.T
	root string
}

// New creates a Harness rooted at t.TempDir() and sows the given tree into
// it.
func New(t *testing.T, tree FileTree) *Harness {
	t.Helper()
	root := t.TempDir()
	h := &Harness{t: t, root: root}
	if err := h.Sow(tree); err != nil {
		t.Fatalf("sow fixture: %v", err)
	}
	return h
}

// Root returns the harness's temporary root directory.
func (h *Harness) Root() string { return h.root }

// Path joins rel onto the harness root.
func (h *Harness) Path(rel string) string { return filepath.Join(h.root, rel) }

// Sow creates every file and symlink in tree beneath the harness root.
func (h *Harness) Sow(tree FileTree) error {
	for _, f := range tree.Files {
		full := h.Path(f.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(full, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	for _, s := range tree.Symlinks {
		full := h.Path(s.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", s.Path, err)
		}
		if err := os.Symlink(s.Target, full); err != nil {
			return fmt.Errorf("symlink %s: %w", s.Path, err)
		}
	}
	return nil
}

// Assert verifies every file and symlink in tree matches the current state
// of the harness root. Content mismatches and missing entries are reported
// via t.Errorf, so a single Assert call surfaces every defect at once.
func (h *Harness) Assert(tree FileTree) {
	h.t.Helper()
	for _, f := range tree.Files {
		full := h.Path(f.Path)
		data, err := os.ReadFile(full)
		if err != nil {
			h.t.Errorf("expected file %s: %v", f.Path, err)
			continue
		}
		if f.Content != "" && string(data) != f.Content {
			h.t.Errorf("file %s content = %q, want %q", f.Path, data, f.Content)
		}
	}
	for _, s := range tree.Symlinks {
		full := h.Path(s.Path)
		target, err := os.Readlink(full)
		if err != nil {
			h.t.Errorf("expected symlink %s: %v", s.Path, err)
			continue
		}
		if target != s.Target {
			h.t.Errorf("symlink %s target = %q, want %q", s.Path, target, s.Target)
		}
	}
}

// AssertAbsent fails the test if any of the given relative paths exist,
// via os.Lstat so a dangling symlink still counts as present.
func (h *Harness) AssertAbsent(paths ...string) {
	h.t.Helper()
	for _, p := range paths {
		if _, err := os.Lstat(h.Path(p)); err == nil {
			h.t.Errorf("expected %s to be absent", p)
		} else if !os.IsNotExist(err) {
			h.t.Errorf("lstat %s: %v", p, err)
		}
	}
}
