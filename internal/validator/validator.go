// Package validator cross-checks a parsed snapshot against live filesystem
// state: membership, content equality against the declared group id,
// symlink source reachability, and the data-loss guard against all-delete
// groups. It never mutates the filesystem.
//
// It re-derives every member's current fingerprint rather than trusting a
// group's declared id, the same progressive-hash-confirmation discipline
// used to build candidate groups in the first place.
package validator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/naiquevin/dupenukem/internal/fsutil"
	"github.com/naiquevin/dupenukem/internal/hasher"
	"github.com/naiquevin/dupenukem/internal/snapshot"
)

// State is the per-member validation outcome.
type State int

const (
	Pending State = iota
	Satisfied
	Conflict
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Satisfied:
		return "satisfied"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// IssueKind enumerates the ValidationError reason codes.
type IssueKind int

const (
	RootMissing IssueKind = iota
	MemberMissing
	ContentDrift
	AllDeleteGroup
	SymlinkSourceUnreachable
	SourceNotEquivalent
)

func (k IssueKind) String() string {
	switch k {
	case RootMissing:
		return "RootMissing"
	case MemberMissing:
		return "MemberMissing"
	case ContentDrift:
		return "ContentDrift"
	case AllDeleteGroup:
		return "AllDeleteGroup"
	case SymlinkSourceUnreachable:
		return "SymlinkSourceUnreachable"
	case SourceNotEquivalent:
		return "SourceNotEquivalent"
	default:
		return "Unknown"
	}
}

// Issue is a single validation defect.
type Issue struct {
	GroupID uint64
	RelPath string // empty for group- or root-level issues
	Kind    IssueKind
	Detail  string
}

func (i Issue) Error() string {
	if i.RelPath == "" {
		return fmt.Sprintf("group %d: %s: %s", i.GroupID, i.Kind, i.Detail)
	}
	return fmt.Sprintf("group %d: %s: %s: %s", i.GroupID, i.RelPath, i.Kind, i.Detail)
}

// MemberResult is the validator's verdict for one snapshot member.
type MemberResult struct {
	GroupID uint64
	RelPath string
	State   State
	// EffectiveSource is set for Symlink members once resolved.
	EffectiveSource string
}

// Report is the result of validating an entire snapshot.
type Report struct {
	PendingCount int
	Members      []MemberResult
	Issues       []Issue
}

// Validator checks a snapshot against live filesystem state. Quick disables
// strong-hash confirmation among non-symlink members, mirroring the mode
// the snapshot was produced with; fingerprint-only equality is otherwise
// assumed sufficient.
type Validator struct {
	Quick bool
}

func New(quick bool) *Validator {
	return &Validator{Quick: quick}
}

// Validate checks snap against the filesystem rooted at snap.Root.
func (v *Validator) Validate(snap *snapshot.Snapshot) (*Report, error) {
	report := &Report{}

	info, err := os.Stat(snap.Root)
	if err != nil || !info.IsDir() {
		report.Issues = append(report.Issues, Issue{Kind: RootMissing, Detail: snap.Root})
		return report, nil
	}

	for _, g := range snap.Groups {
		v.validateGroup(snap.Root, g, report)
	}

	for _, m := range report.Members {
		if m.State == Pending {
			report.PendingCount++
		}
	}
	return report, nil
}

func (v *Validator) validateGroup(root string, g snapshot.Group, report *Report) {
	allDelete := true
	for _, m := range g.Members {
		if m.Marker != snapshot.Delete {
			allDelete = false
			break
		}
	}
	if allDelete {
		report.Issues = append(report.Issues, Issue{GroupID: g.ID, Kind: AllDeleteGroup, Detail: "every member marked delete"})
	}

	firstKeep := snapshot.FirstKeepRelPath(g)

	// strongRef anchors the non-quick strong-hash comparison among this
	// group's non-symlink members: the first one checked sets the
	// reference digest, and every later one must match it.
	ref := &strongRef{}

	for _, m := range g.Members {
		result := MemberResult{GroupID: g.ID, RelPath: m.RelPath}
		full := filepath.Join(root, m.RelPath)

		if !fsutil.IsWithin(root, full) {
			report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: MemberMissing, Detail: "escapes root"})
			result.State = Conflict
			report.Members = append(report.Members, result)
			continue
		}

		lst, statErr := os.Lstat(full)
		switch {
		case statErr != nil:
			if m.Marker == snapshot.Delete {
				result.State = Satisfied
			} else {
				report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: MemberMissing, Detail: statErr.Error()})
				result.State = Conflict
			}
			report.Members = append(report.Members, result)
			continue
		default:
			_ = lst
		}

		isSymlink, _ := fsutil.IsSymlink(full)

		switch m.Marker {
		case snapshot.Keep:
			// Keep is always a no-op once its content is confirmed: there is
			// no pending mutation to perform, so a content match is Satisfied
			// rather than Pending.
			if state := v.checkContentMatches(g, m.RelPath, full, ref, report); state == Conflict {
				result.State = Conflict
			} else {
				result.State = Satisfied
			}

		case snapshot.Delete:
			result.State = v.checkContentMatches(g, m.RelPath, full, ref, report)

		case snapshot.Symlink:
			source := snapshot.EffectiveSource(m, firstKeep)
			if source == nil {
				report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: SymlinkSourceUnreachable, Detail: "no explicit source and no keep member in group"})
				result.State = Conflict
				report.Members = append(report.Members, result)
				continue
			}
			result.EffectiveSource = source.Value

			sourceAbs := snapshot.ResolveSource(filepath.Dir(full), *source)
			if isSymlink {
				target, _ := fsutil.ReadSymlinkTarget(full)
				if target == source.Value {
					result.State = Satisfied
					report.Members = append(report.Members, result)
					continue
				}
			}

			// The member's own current content must still match the group id
			// (os.Open follows a symlink left by a prior apply to its pointee).
			fp, err := hasher.Fingerprint(full)
			if err != nil {
				report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: MemberMissing, Detail: err.Error()})
				result.State = Conflict
				report.Members = append(report.Members, result)
				continue
			}
			if fp != g.ID {
				report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: ContentDrift, Detail: fmt.Sprintf("fingerprint %d != group id %d", fp, g.ID)})
				result.State = Conflict
				report.Members = append(report.Members, result)
				continue
			}

			if _, err := os.Stat(sourceAbs); err != nil {
				report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: SymlinkSourceUnreachable, Detail: sourceAbs})
				result.State = Conflict
				report.Members = append(report.Members, result)
				continue
			}

			srcFP, err := hasher.Fingerprint(sourceAbs)
			if err != nil || srcFP != g.ID {
				report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: m.RelPath, Kind: SourceNotEquivalent, Detail: sourceAbs})
				result.State = Conflict
				report.Members = append(report.Members, result)
				continue
			}

			result.State = Pending
		}

		report.Members = append(report.Members, result)
	}
}

// strongRef holds the sha256 digest the first checked non-symlink member in
// a group establishes, so every later member can be compared against it.
type strongRef struct {
	set  bool
	hash [32]byte
	path string
}

// checkContentMatches verifies full's current content fingerprint equals
// the group id. A member already turned into a
// symlink by a prior apply is accepted (its pointee is hashed instead,
// since os.Open transparently follows the symlink).
//
// When v.Quick is false, it additionally requires full's sha256 digest to
// equal the group's reference digest (the first non-symlink member checked
// sets it): a fingerprint collision between distinct contents is exactly
// what the strong-hash stage is for.
func (v *Validator) checkContentMatches(g snapshot.Group, relPath, full string, ref *strongRef, report *Report) State {
	fp, err := hasher.Fingerprint(full)
	if err != nil {
		report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: relPath, Kind: MemberMissing, Detail: err.Error()})
		return Conflict
	}
	if fp != g.ID {
		report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: relPath, Kind: ContentDrift, Detail: fmt.Sprintf("fingerprint %d != group id %d", fp, g.ID)})
		return Conflict
	}
	if v.Quick {
		return Pending
	}

	sh, err := hasher.StrongHash(full)
	if err != nil {
		report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: relPath, Kind: MemberMissing, Detail: err.Error()})
		return Conflict
	}
	if !ref.set {
		ref.set = true
		ref.hash = sh
		ref.path = relPath
		return Pending
	}
	if sh != ref.hash {
		report.Issues = append(report.Issues, Issue{GroupID: g.ID, RelPath: relPath, Kind: ContentDrift, Detail: fmt.Sprintf("strong hash diverges from %s", ref.path)})
		return Conflict
	}
	return Pending
}
