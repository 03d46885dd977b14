// Package finder implements the three-stage duplicate detection pipeline:
// group by size, group by fast fingerprint, optionally confirm with a
// strong hash.
//
// # Staging
//
// Stage 1 (size) is pure metadata grouping — O(n), no I/O — and is always
// sequential, culling singletons cheaply before anything touches disk.
//
// Stages 2 and 3 both read file content, so both are parallelized with a
// bounded worker pool (a fixed number of goroutines feeding a results
// channel), on the condition that the final group and member ordering is
// identical to what a sequential run would produce — so each stage only
// collects its raw results from the channel fan-in into maps, and groups
// and members are sorted once, after all hashing is complete.
package finder

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/naiquevin/dupenukem/internal/hasher"
	"github.com/naiquevin/dupenukem/internal/hashcache"
	"github.com/naiquevin/dupenukem/internal/progress"
	"github.com/naiquevin/dupenukem/internal/types"
)

// Group is a confirmed duplicate group: a 64-bit fingerprint (the group id)
// and its member files, sorted lexicographically by path. Only emitted for
// groups of two or more members.
type Group struct {
	ID      uint64
	Members []*types.FileEntry
}

// Finder runs the three-stage pipeline over a set of scanned files.
//
// Designed for single use: create with New, call Run once.
type Finder struct {
	files        []*types.FileEntry
	quick        bool // skip stage 3 (strong hash confirmation)
	workers      int
	showProgress bool
	errCh        chan error
	cache        *hashcache.Cache
}

// New creates a Finder. cache may be nil to disable hash caching.
func New(files []*types.FileEntry, quick bool, workers int, showProgress bool, errCh chan error, cache *hashcache.Cache) *Finder {
	if workers < 1 {
		workers = 1
	}
	return &Finder{files: files, quick: quick, workers: workers, showProgress: showProgress, errCh: errCh, cache: cache}
}

type stats struct {
	candidateFiles  int
	confirmedGroups int
	startTime       time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Screened %d candidates into %d duplicate groups in %.1fs",
		s.candidateFiles, s.confirmedGroups, time.Since(s.startTime).Seconds())
}

// Run executes all three stages and returns the confirmed duplicate groups,
// sorted descending by member file size and, within ties, ascending by
// fingerprint. Only regular files participate;
// symlinks recorded by the scanner are never hashed or grouped.
func (f *Finder) Run() ([]Group, error) {
	bar := progress.New(f.showProgress, -1)
	st := &stats{startTime: time.Now()}
	bar.Describe(st)

	regulars := make([]*types.FileEntry, 0, len(f.files))
	for _, fe := range f.files {
		if fe.Kind == types.Regular {
			regulars = append(regulars, fe)
		}
	}

	bySize := groupBySize(regulars)
	st.candidateFiles = countEntries(bySize)
	bar.Describe(st)

	byFingerprint := f.groupByFingerprint(bySize)

	var groups []Group
	if f.quick {
		groups = toGroups(byFingerprint)
	} else {
		groups = f.confirmWithStrongHash(byFingerprint)
	}

	st.confirmedGroups = len(groups)
	bar.Describe(st)
	sortGroups(groups)
	bar.Finish(st)
	return groups, nil
}

// groupBySize drops size-singleton files with no I/O.
func groupBySize(files []*types.FileEntry) map[int64][]*types.FileEntry {
	bySize := make(map[int64][]*types.FileEntry)
	for _, f := range files {
		bySize[f.Size] = append(bySize[f.Size], f)
	}
	for size, group := range bySize {
		if len(group) < 2 {
			delete(bySize, size)
		}
	}
	return bySize
}

func countEntries(bySize map[int64][]*types.FileEntry) int {
	n := 0
	for _, group := range bySize {
		n += len(group)
	}
	return n
}

// jobResult pairs a file with a computed value of type T, or an error.
type jobResult[T any] struct {
	entry *types.FileEntry
	value T
	err   error
}

// runPool runs fn over entries using a bounded worker pool and returns
// results in arrival order, not input order — callers must re-sort after
// the join.
func runPool[T any](workers int, entries []*types.FileEntry, fn func(*types.FileEntry) (T, error)) []jobResult[T] {
	jobs := make(chan *types.FileEntry)
	results := make(chan jobResult[T])

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fe := range jobs {
				v, err := fn(fe)
				results <- jobResult[T]{entry: fe, value: v, err: err}
			}
		}()
	}

	go func() {
		for _, fe := range entries {
			jobs <- fe
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]jobResult[T], 0, len(entries))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// groupByFingerprint computes the fast 64-bit hash for every size-cohort
// survivor concurrently, then groups by fingerprint and drops singletons
// The fingerprint becomes the snapshot group id.
func (f *Finder) groupByFingerprint(bySize map[int64][]*types.FileEntry) map[uint64][]*types.FileEntry {
	var all []*types.FileEntry
	for _, group := range bySize {
		all = append(all, group...)
	}

	results := runPool(f.workers, all, func(fe *types.FileEntry) (uint64, error) {
		if cached, _ := f.lookupCache(hashcache.FingerprintKind, fe); len(cached) == 8 {
			return binary.BigEndian.Uint64(cached), nil
		}
		fp, err := hasher.Fingerprint(fe.Path)
		if err != nil {
			return 0, err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], fp)
		f.storeCache(hashcache.FingerprintKind, fe, buf[:])
		return fp, nil
	})

	byFingerprint := make(map[uint64][]*types.FileEntry)
	for _, r := range results {
		if r.err != nil {
			f.sendError(fmt.Errorf("%s: %w", r.entry.Path, r.err))
			continue
		}
		byFingerprint[r.value] = append(byFingerprint[r.value], r.entry)
	}
	for fp, group := range byFingerprint {
		if len(group) < 2 {
			delete(byFingerprint, fp)
		}
	}
	return byFingerprint
}

// confirmWithStrongHash splits every fingerprint bucket by sha256 equality,
// retaining only sub-groups of size >= 2. The snapshot
// group id stays the fingerprint even when a bucket splits into multiple
// sha256 cohorts (collisions acknowledged, not disambiguated in
// the id).
func (f *Finder) confirmWithStrongHash(byFingerprint map[uint64][]*types.FileEntry) []Group {
	var groups []Group
	for fp, members := range byFingerprint {
		results := runPool(f.workers, members, func(fe *types.FileEntry) ([32]byte, error) {
			if cached, _ := f.lookupCache(hashcache.StrongKind, fe); len(cached) == 32 {
				var h [32]byte
				copy(h[:], cached)
				return h, nil
			}
			h, err := hasher.StrongHash(fe.Path)
			if err != nil {
				return [32]byte{}, err
			}
			f.storeCache(hashcache.StrongKind, fe, h[:])
			return h, nil
		})

		byHash := make(map[[32]byte][]*types.FileEntry)
		for _, r := range results {
			if r.err != nil {
				f.sendError(fmt.Errorf("%s: %w", r.entry.Path, r.err))
				continue
			}
			byHash[r.value] = append(byHash[r.value], r.entry)
		}
		for _, sub := range byHash {
			if len(sub) >= 2 {
				groups = append(groups, Group{ID: fp, Members: sub})
			}
		}
	}
	return groups
}

func toGroups(byFingerprint map[uint64][]*types.FileEntry) []Group {
	groups := make([]Group, 0, len(byFingerprint))
	for fp, members := range byFingerprint {
		groups = append(groups, Group{ID: fp, Members: members})
	}
	return groups
}

func sortGroups(groups []Group) {
	for _, g := range groups {
		sort.Slice(g.Members, func(i, j int) bool { return g.Members[i].Path < g.Members[j].Path })
	}
	sort.Slice(groups, func(i, j int) bool {
		si, sj := groups[i].Members[0].Size, groups[j].Members[0].Size
		if si != sj {
			return si > sj
		}
		return groups[i].ID < groups[j].ID
	})
}

func (f *Finder) sendError(err error) {
	if f.errCh != nil {
		f.errCh <- err
	}
}

func (f *Finder) lookupCache(kind hashcache.Kind, fe *types.FileEntry) ([]byte, error) {
	if f.cache == nil {
		return nil, nil
	}
	mtime, err := statMtime(fe.Path)
	if err != nil {
		return nil, err
	}
	return f.cache.Lookup(kind, fe.Path, fe.Size, mtime)
}

func (f *Finder) storeCache(kind hashcache.Kind, fe *types.FileEntry, hash []byte) {
	if f.cache == nil {
		return
	}
	mtime, err := statMtime(fe.Path)
	if err != nil {
		return
	}
	_ = f.cache.Store(kind, fe.Path, fe.Size, mtime, hash)
}

func statMtime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
