// Package applier executes the actions recorded in a validated snapshot:
// deleting files, replacing them with symlinks, backing up originals, and
// doing so idempotently by consulting live filesystem state rather than
// internal progress bookkeeping.
//
// Symlink creation uses temp-name-then-rename atomicity so the symlink is
// never half-written. The original file is moved into the backup tree just
// before the symlink is renamed into place, so the path is absent between
// those two steps.
package applier

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/naiquevin/dupenukem/internal/fsutil"
	"github.com/naiquevin/dupenukem/internal/snapshot"
	"github.com/naiquevin/dupenukem/internal/validator"
)

// Mode selects whether Apply mutates the filesystem.
type Mode int

const (
	DryRun Mode = iota
	Execute
)

// Action records what the applier did (or would do) for one member.
type Action struct {
	GroupID uint64
	RelPath string
	Marker  snapshot.Marker
	Skipped bool // true when the action was already Satisfied
	Detail  string
}

// Report summarizes an apply run.
type Report struct {
	AppliedCount int
	SkippedCount int
	FreedBytes   int64
	Actions      []Action
}

// Applier executes a validated snapshot's pending actions.
type Applier struct {
	Mode       Mode
	BackupRoot string // parent of the timestamped backup directory
	Quick      bool
}

const defaultBackupDirName = ".dupenukem/backups"

// DefaultBackupRoot returns <home>/.dupenukem/backups.
func DefaultBackupRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultBackupDirName), nil
}

// New creates an Applier. backupRoot may be empty to use DefaultBackupRoot.
func New(mode Mode, backupRoot string, quick bool) (*Applier, error) {
	if backupRoot == "" {
		var err error
		backupRoot, err = DefaultBackupRoot()
		if err != nil {
			return nil, err
		}
	}
	return &Applier{Mode: mode, BackupRoot: backupRoot, Quick: quick}, nil
}

// Apply re-validates snap immediately before touching the filesystem (the
// TOCTOU mitigation) and then executes every Pending action in
// order. On the first action whose re-validated state is Conflict, the
// apply aborts without performing that action; earlier actions remain
// applied since they are individually idempotent.
func (a *Applier) Apply(snap *snapshot.Snapshot) (*Report, error) {
	report := &Report{}

	v := validator.New(a.Quick)
	pre, err := v.Validate(snap)
	if err != nil {
		return nil, err
	}
	if hasRootMissing(pre) {
		return nil, fmt.Errorf("apply: root %s is missing or not a directory", snap.Root)
	}
	if hasAllDeleteGroup(pre) {
		return nil, fmt.Errorf("apply: snapshot contains an all-delete group, refusing to apply")
	}

	backupDir := filepath.Join(a.BackupRoot, time.Now().Format("20060102150405"))

	for _, g := range snap.Groups {
		firstKeep := snapshot.FirstKeepRelPath(g)
		for _, m := range g.Members {
			if err := a.applyMember(snap.Root, backupDir, g, m, firstKeep, report); err != nil {
				return report, err
			}
		}
	}

	return report, nil
}

func hasRootMissing(report *validator.Report) bool {
	for _, iss := range report.Issues {
		if iss.Kind == validator.RootMissing {
			return true
		}
	}
	return false
}

func hasAllDeleteGroup(report *validator.Report) bool {
	for _, iss := range report.Issues {
		if iss.Kind == validator.AllDeleteGroup {
			return true
		}
	}
	return false
}

// applyMember re-validates a single member immediately before acting on it
// (TOCTOU mitigation) and then executes its action.
func (a *Applier) applyMember(root, backupDir string, g snapshot.Group, m snapshot.Member, firstKeep string, report *Report) error {
	full := filepath.Join(root, m.RelPath)
	state, err := a.reValidateMember(root, g, m, firstKeep)
	if err != nil {
		return err
	}

	action := Action{GroupID: g.ID, RelPath: m.RelPath, Marker: m.Marker}

	switch state {
	case validator.Conflict:
		return fmt.Errorf("apply: %s: on-disk state drifted since validation, aborting", m.RelPath)

	case validator.Satisfied:
		action.Skipped = true
		report.SkippedCount++
		report.Actions = append(report.Actions, action)
		return nil
	}

	switch m.Marker {
	case snapshot.Keep:
		// Unreachable in practice: a content-matching Keep member is always
		// Satisfied by the validator and handled above. Kept as a safety net
		// in case a caller constructs a Pending Keep member directly.
		action.Skipped = true
		report.SkippedCount++

	case snapshot.Delete:
		if a.Mode == DryRun {
			action.Detail = "would back up and delete"
			report.AppliedCount++
			break
		}
		size, err := fileSize(full)
		if err != nil {
			return fmt.Errorf("apply delete %s: %w", m.RelPath, err)
		}
		if _, err := fsutil.CopyIntoBackup(full, root, backupDir); err != nil {
			return fmt.Errorf("apply delete %s: backup: %w", m.RelPath, err)
		}
		if err := os.Remove(full); err != nil {
			return fmt.Errorf("apply delete %s: unlink: %w", m.RelPath, err)
		}
		report.FreedBytes += size
		report.AppliedCount++

	case snapshot.Symlink:
		source := snapshot.EffectiveSource(m, firstKeep)
		if source == nil {
			return fmt.Errorf("apply symlink %s: no resolvable source", m.RelPath)
		}
		if a.Mode == DryRun {
			action.Detail = fmt.Sprintf("would replace with symlink -> %s", source.Value)
			report.AppliedCount++
			break
		}
		size, err := fileSize(full)
		if err != nil {
			return fmt.Errorf("apply symlink %s: %w", m.RelPath, err)
		}
		if _, err := fsutil.MoveIntoBackup(full, root, backupDir); err != nil {
			return fmt.Errorf("apply symlink %s: backup: %w", m.RelPath, err)
		}
		if err := fsutil.AtomicReplaceWithSymlink(source.Value, full); err != nil {
			return fmt.Errorf("apply symlink %s: %w", m.RelPath, err)
		}
		report.FreedBytes += size
		report.AppliedCount++
	}

	report.Actions = append(report.Actions, action)
	return nil
}

// reValidateMember re-checks a single member's state right before acting on
// it, so a change to the filesystem between `validate` and `apply` (or
// between two actions within the same apply) is caught as a Conflict
// instead of silently overwritten.
func (a *Applier) reValidateMember(root string, g snapshot.Group, m snapshot.Member, firstKeep string) (validator.State, error) {
	single := snapshot.Snapshot{Root: root, Groups: []snapshot.Group{{ID: g.ID, Members: []snapshot.Member{m}}}}
	if m.Marker == snapshot.Symlink && m.Source == nil && firstKeep != "" {
		single.Groups[0].Members = append(single.Groups[0].Members, snapshot.Member{RelPath: firstKeep, Marker: snapshot.Keep})
	}
	report, err := validator.New(a.Quick).Validate(&single)
	if err != nil {
		return validator.Conflict, err
	}
	for _, res := range report.Members {
		if res.RelPath == m.RelPath {
			return res.State, nil
		}
	}
	return validator.Conflict, fmt.Errorf("re-validation produced no result for %s", m.RelPath)
}

func fileSize(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
