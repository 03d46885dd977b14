package snapshot

import (
	"fmt"
	"io"
	"sort"
)

// referenceBlock is appended after all groups, documenting the marker
// grammar for whoever opens the snapshot in an editor. It carries no
// semantic weight and is not required for round-trip identity.
const referenceBlock = `# Markers: keep, delete, symlink
# A symlink member may specify its source explicitly:
#   symlink relpath -> ../other/relpath
#   symlink relpath -> /absolute/path/to/other
# Omitting the source chooses the first 'keep' member of the group implicitly.
`

// Write serializes snap to w: metadata, a blank line, each group in
// descending-size/ascending-fingerprint order (matching the order the
// Duplicate Finder already produced — this function does not re-sort
// groups, only their members), then a trailing reference comment block.
func Write(w io.Writer, snap *Snapshot) error {
	bw := &errWriter{w: w}

	bw.printf("%s Root Directory: %s\n", metaPrefix, snap.Root)
	bw.printf("%s Generated at: %s\n", metaPrefix, snap.GeneratedAt)
	for _, k := range sortedKeys(snap.Extra) {
		bw.printf("%s %s: %s\n", metaPrefix, k, snap.Extra[k])
	}
	bw.printf("\n")

	for i, g := range snap.Groups {
		bw.printf("[%d]\n", g.ID)
		members := append([]Member(nil), g.Members...)
		sort.Slice(members, func(a, b int) bool { return members[a].RelPath < members[b].RelPath })
		for _, m := range members {
			writeMember(bw, m)
		}
		if i != len(snap.Groups)-1 {
			bw.printf("\n")
		}
	}

	bw.printf("\n%s", referenceBlock)
	return bw.err
}

func writeMember(bw *errWriter, m Member) {
	if m.Marker == Symlink && m.Source != nil {
		bw.printf("%s %s -> %s\n", m.Marker, m.RelPath, m.Source.Value)
	} else {
		bw.printf("%s %s\n", m.Marker, m.RelPath)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errWriter accumulates the first write error and suppresses subsequent
// writes, so callers need not check an error after every Fprintf.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
