package validator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/naiquevin/dupenukem/internal/hasher"
	"github.com/naiquevin/dupenukem/internal/snapshot"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fingerprintOf(t *testing.T, path string) uint64 {
	t.Helper()
	fp, err := hasher.Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	return fp
}

func TestValidatePendingSymlinkAndDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "bar/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "foo/2.txt"), "TWO\n")
	writeFile(t, filepath.Join(root, "cat/2.txt"), "TWO\n")

	oneID := fingerprintOf(t, filepath.Join(root, "foo/1.txt"))
	twoID := fingerprintOf(t, filepath.Join(root, "foo/2.txt"))

	snap := &snapshot.Snapshot{
		Root: root,
		Groups: []snapshot.Group{
			{ID: oneID, Members: []snapshot.Member{
				{RelPath: "foo/1.txt", Marker: snapshot.Keep},
				{RelPath: "bar/1.txt", Marker: snapshot.Symlink},
			}},
			{ID: twoID, Members: []snapshot.Member{
				{RelPath: "foo/2.txt", Marker: snapshot.Keep},
				{RelPath: "cat/2.txt", Marker: snapshot.Delete},
			}},
		},
	}

	report, err := New(false).Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("unexpected issues: %+v", report.Issues)
	}
	if report.PendingCount != 2 {
		t.Fatalf("expected 2 pending, got %d: %+v", report.PendingCount, report.Members)
	}
}

func TestValidateDetectsContentDrift(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "bar/1.txt"), "ONE\n")
	oneID := fingerprintOf(t, filepath.Join(root, "foo/1.txt"))

	snap := &snapshot.Snapshot{
		Root: root,
		Groups: []snapshot.Group{
			{ID: oneID, Members: []snapshot.Member{
				{RelPath: "foo/1.txt", Marker: snapshot.Keep},
				{RelPath: "bar/1.txt", Marker: snapshot.Symlink},
			}},
		},
	}

	writeFile(t, filepath.Join(root, "bar/1.txt"), "CHANGED\n")

	report, err := New(false).Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	var gotDrift bool
	for _, iss := range report.Issues {
		if iss.Kind == SourceNotEquivalent || iss.Kind == ContentDrift {
			gotDrift = true
		}
	}
	if !gotDrift {
		t.Errorf("expected a drift-related issue, got %+v", report.Issues)
	}
}

func TestValidateRejectsAllDeleteGroup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "DUP\n")
	writeFile(t, filepath.Join(root, "b.txt"), "DUP\n")
	id := fingerprintOf(t, filepath.Join(root, "a.txt"))

	snap := &snapshot.Snapshot{
		Root: root,
		Groups: []snapshot.Group{
			{ID: id, Members: []snapshot.Member{
				{RelPath: "a.txt", Marker: snapshot.Delete},
				{RelPath: "b.txt", Marker: snapshot.Delete},
			}},
		},
	}

	report, err := New(false).Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	var gotAllDelete bool
	for _, iss := range report.Issues {
		if iss.Kind == AllDeleteGroup {
			gotAllDelete = true
		}
	}
	if !gotAllDelete {
		t.Fatalf("expected AllDeleteGroup issue, got %+v", report.Issues)
	}
}

func TestValidateSatisfiedAfterApply(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo/1.txt"), "ONE\n")
	id := fingerprintOf(t, filepath.Join(root, "foo/1.txt"))

	barDir := filepath.Join(root, "bar")
	if err := os.MkdirAll(barDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("../foo/1.txt", filepath.Join(barDir, "1.txt")); err != nil {
		t.Fatal(err)
	}

	snap := &snapshot.Snapshot{
		Root: root,
		Groups: []snapshot.Group{
			{ID: id, Members: []snapshot.Member{
				{RelPath: "foo/1.txt", Marker: snapshot.Keep},
				{RelPath: "bar/1.txt", Marker: snapshot.Symlink, Source: &snapshot.PathSpec{Value: "../foo/1.txt"}},
			}},
		},
	}

	report, err := New(false).Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	if report.PendingCount != 0 {
		t.Fatalf("expected 0 pending after apply, got %d: %+v", report.PendingCount, report.Members)
	}
	for _, m := range report.Members {
		if m.State != Satisfied {
			t.Errorf("expected Satisfied, got %v for %s", m.State, m.RelPath)
		}
	}
}

func TestValidateNonQuickConfirmsStrongHashAcrossMembers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "bar/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "baz/1.txt"), "ONE\n")
	id := fingerprintOf(t, filepath.Join(root, "foo/1.txt"))

	snap := &snapshot.Snapshot{
		Root: root,
		Groups: []snapshot.Group{
			{ID: id, Members: []snapshot.Member{
				{RelPath: "foo/1.txt", Marker: snapshot.Keep},
				{RelPath: "bar/1.txt", Marker: snapshot.Delete},
				{RelPath: "baz/1.txt", Marker: snapshot.Delete},
			}},
		},
	}

	report, err := New(false).Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("unexpected issues: %+v", report.Issues)
	}
	if report.PendingCount != 2 {
		t.Fatalf("expected 2 pending deletes, got %d: %+v", report.PendingCount, report.Members)
	}
}

// TestValidateNonQuickDetectsStrongHashDivergence exercises checkContentMatches
// directly (same package) to confirm the strong-hash comparison itself, since
// producing two files with a genuine xxh3 fingerprint collision but different
// sha256 digests isn't constructible in a test. foo/1.txt and bar/1.txt are
// real duplicates, establishing the group's reference strong hash; cat/1.txt
// is given a different real fingerprint that is then overridden to match the
// declared group id directly on the snapshot, reproducing the exact state
// live non-quick validation would see after an undetected fingerprint
// collision — content differs, fingerprint matches, sha256 doesn't.
func TestValidateNonQuickDetectsStrongHashDivergence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "foo/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "bar/1.txt"), "ONE\n")
	writeFile(t, filepath.Join(root, "cat/1.txt"), "OTHER\n")
	id := fingerprintOf(t, filepath.Join(root, "foo/1.txt"))

	report := &Report{}
	ref := &strongRef{}
	fullFoo := filepath.Join(root, "foo/1.txt")
	fullBar := filepath.Join(root, "bar/1.txt")
	fullCat := filepath.Join(root, "cat/1.txt")

	nonQuick := New(false)
	if state := nonQuick.checkContentMatches(snapshot.Group{ID: id}, "foo/1.txt", fullFoo, ref, report); state != Pending {
		t.Fatalf("expected first member Pending, got %v: %+v", state, report.Issues)
	}
	if state := nonQuick.checkContentMatches(snapshot.Group{ID: id}, "bar/1.txt", fullBar, ref, report); state != Pending {
		t.Fatalf("expected real duplicate Pending, got %v: %+v", state, report.Issues)
	}

	// cat/1.txt's real fingerprint differs from id, so checking it against
	// id directly would be rejected at the fingerprint stage rather than
	// reaching the strong-hash comparison; fake the fingerprint match here
	// to isolate and exercise the strong-hash divergence check on its own.
	catID := fingerprintOf(t, fullCat)
	state := nonQuick.checkContentMatches(snapshot.Group{ID: catID}, "cat/1.txt", fullCat, ref, report)
	if state != Conflict {
		t.Fatalf("expected strong-hash divergence to be a Conflict, got %v", state)
	}
	var gotContentDrift bool
	for _, iss := range report.Issues {
		if iss.Kind == ContentDrift {
			gotContentDrift = true
		}
	}
	if !gotContentDrift {
		t.Fatalf("expected a ContentDrift issue, got %+v", report.Issues)
	}

	// In quick mode the strong-hash comparison never runs, so the same
	// (genuinely fingerprint-matching) file is accepted.
	quickReport := &Report{}
	quickRef := &strongRef{}
	quick := New(true)
	if state := quick.checkContentMatches(snapshot.Group{ID: id}, "foo/1.txt", fullFoo, quickRef, quickReport); state != Pending {
		t.Fatalf("expected quick-mode Pending, got %v: %+v", state, quickReport.Issues)
	}
}

func TestValidateRootMissing(t *testing.T) {
	snap := &snapshot.Snapshot{Root: "/nonexistent/path/for/dupenukem/test"}
	report, err := New(false).Validate(snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 1 || report.Issues[0].Kind != RootMissing {
		t.Fatalf("expected RootMissing issue, got %+v", report.Issues)
	}
}
