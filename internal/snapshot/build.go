package snapshot

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/naiquevin/dupenukem/internal/finder"
	"github.com/naiquevin/dupenukem/internal/types"
)

// FromGroups builds a Snapshot from the Duplicate Finder's output, rooted
// at root. Every member starts with action Keep. generatedAt
// is formatted as RFC 2822, matching the grammar's required metadata key.
func FromGroups(root string, groups []finder.Group, generatedAt time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		Root:        root,
		GeneratedAt: generatedAt.Format(time.RFC1123Z),
		Extra:       make(map[string]string),
	}

	for _, g := range groups {
		members := make([]Member, 0, len(g.Members))
		for _, fe := range g.Members {
			rel, err := filepath.Rel(root, fe.Path)
			if err != nil {
				return nil, fmt.Errorf("relative path for %s: %w", fe.Path, err)
			}
			members = append(members, Member{RelPath: rel, Marker: Keep})
		}
		snap.Groups = append(snap.Groups, Group{ID: g.ID, Members: members})
	}

	return snap, nil
}
