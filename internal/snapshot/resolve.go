package snapshot

import (
	"path/filepath"
	"sort"
)

// FirstKeepRelPath returns the lexicographically first Keep member's
// relative path in g, or "" if the group has no Keep member.
func FirstKeepRelPath(g Group) string {
	var keeps []string
	for _, m := range g.Members {
		if m.Marker == Keep {
			keeps = append(keeps, m.RelPath)
		}
	}
	if len(keeps) == 0 {
		return ""
	}
	sort.Strings(keeps)
	return keeps[0]
}

// EffectiveSource resolves a Symlink member's source: the explicit source
// if given, else the group's first Keep member expressed relative to the
// symlink's own directory. Returns nil if neither is available.
func EffectiveSource(m Member, firstKeepRelPath string) *PathSpec {
	if m.Source != nil {
		return m.Source
	}
	if firstKeepRelPath == "" {
		return nil
	}
	rel, err := filepath.Rel(filepath.Dir(m.RelPath), firstKeepRelPath)
	if err != nil {
		return nil
	}
	return &PathSpec{Value: rel, Abs: false}
}

// ResolveSource turns a PathSpec into an absolute path, given the directory
// the symlink itself lives in.
func ResolveSource(symlinkDir string, spec PathSpec) string {
	if spec.Abs {
		return spec.Value
	}
	return filepath.Join(symlinkDir, spec.Value)
}
