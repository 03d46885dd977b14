package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/naiquevin/dupenukem/internal/types"
)

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced when running as root")
	}
}

func createFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunFindsRegularFiles(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "a.txt"), 10)
	createFile(t, filepath.Join(root, "sub", "b.txt"), 20)

	files, err := New(root, nil, false, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	for _, f := range files {
		if f.Kind != types.Regular {
			t.Errorf("expected Regular kind, got %v", f.Kind)
		}
	}
}

func TestRunRecordsSymlinksWithoutFollowing(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "real.txt"), 5)
	if err := os.Symlink("real.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Fatal(err)
	}

	files, err := New(root, nil, false, nil).Run()
	if err != nil {
		t.Fatal(err)
	}

	var sawSymlink bool
	for _, f := range files {
		if f.Kind == types.Symlink {
			sawSymlink = true
			if f.Target != "real.txt" {
				t.Errorf("symlink target = %q, want %q", f.Target, "real.txt")
			}
		}
	}
	if !sawSymlink {
		t.Error("expected a Symlink entry for link.txt")
	}
	if len(files) != 2 {
		t.Errorf("expected 2 entries (real file + symlink), got %d", len(files))
	}
}

func TestRunExcludesByBareName(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "keep.txt"), 10)
	createFile(t, filepath.Join(root, "node_modules", "dep.txt"), 10)

	files, err := New(root, []string{"node_modules"}, false, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file after excluding node_modules, got %d", len(files))
	}
	if filepath.Base(files[0].Path) != "keep.txt" {
		t.Errorf("unexpected surviving file: %s", files[0].Path)
	}
}

func TestRunExcludesByRootRelativePath(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "a", "skip.txt"), 10)
	createFile(t, filepath.Join(root, "b", "skip.txt"), 10)

	files, err := New(root, []string{"a/skip.txt"}, false, nil).Run()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if !filepath.IsAbs(files[0].Path) {
		t.Errorf("expected absolute path, got %s", files[0].Path)
	}
}

func TestRunRejectsNonDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	createFile(t, file, 1)

	if _, err := New(file, nil, false, nil).Run(); err == nil {
		t.Fatal("expected error when root is not a directory")
	}
}

func TestRunReportsUnreadableDirectoryButContinues(t *testing.T) {
	skipIfRoot(t)
	root := t.TempDir()
	createFile(t, filepath.Join(root, "ok.txt"), 1)
	blocked := filepath.Join(root, "blocked")
	if err := os.Mkdir(blocked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chmod(blocked, 0o755) }()

	errs := make(chan error, 10)
	files, err := New(root, nil, false, errs).Run()
	if err != nil {
		t.Fatal(err)
	}
	close(errs)

	var gotErr bool
	for range errs {
		gotErr = true
	}
	if !gotErr {
		t.Error("expected an error for the unreadable directory")
	}
	if len(files) != 1 {
		t.Errorf("expected 1 readable file, got %d", len(files))
	}
}
