// Package mergeutil implements a three-way merge: merge-base
// discovery, a per-path reconciliation table, line-level merging with
// conflict markers, and the commit/abort bookkeeping around it.
package mergeutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	git "github.com/Nivl/minigit"
	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/worktree"
	"golang.org/x/xerrors"
)

// mergeMsgFileName holds the in-progress merge's commit message,
// mirroring MERGE_HEAD which holds the commit being merged in
const mergeMsgFileName = "MERGE_MSG"

// Errors returned by this package
var (
	// ErrNoMergeBase is returned when two commits share no common
	// ancestor at all
	ErrNoMergeBase = errors.New("no common ancestor")
	// ErrNotInMerge is returned when Abort is called but no merge is
	// in progress
	ErrNotInMerge = errors.New("no merge in progress")
)

// binarySniffLen is how many leading bytes are inspected for a NUL
// byte when deciding whether a blob is binary
const binarySniffLen = 8000

// Outcome describes how a merge concluded
type Outcome int

const (
	// OutcomeUpToDate means theirs was already reachable from ours;
	// nothing changed
	OutcomeUpToDate Outcome = iota
	// OutcomeFastForward means ours was an ancestor of theirs; the
	// branch ref was simply moved
	OutcomeFastForward
	// OutcomeMerged means a new merge commit with two parents was
	// created
	OutcomeMerged
	// OutcomeConflict means one or more paths couldn't be reconciled
	// automatically; MERGE_HEAD/MERGE_MSG were written and nothing was
	// committed
	OutcomeConflict
)

// Result is returned by Merge
type Result struct {
	Outcome       Outcome
	Commit        ginternals.Oid
	ConflictPaths []string
}

// Options controls Merge's behavior
type Options struct {
	// Committer is used as both author and committer of the merge
	// commit
	Committer object.Signature
	// SkipWorktree disables projecting the result onto the working
	// tree/index (useful for bare repositories or tests)
	SkipWorktree bool
}

// ancestors returns the set of commits reachable from start
// (inclusive), via a breadth-first walk of parent links
func ancestors(r *git.Repository, start ginternals.Oid) (map[ginternals.Oid]struct{}, error) {
	visited := map[ginternals.Oid]struct{}{}
	queue := []ginternals.Oid{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		c, err := r.GetCommit(id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, c.ParentIDs()...)
	}
	return visited, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links
func IsAncestor(r *git.Repository, ancestor, descendant ginternals.Oid) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	visited, err := ancestors(r, descendant)
	if err != nil {
		return false, err
	}
	_, ok := visited[ancestor]
	return ok, nil
}

// MergeBase finds a common ancestor of a and b. When the history
// contains several (e.g. criss-cross merges), any one of them is
// returned: callers that need the single best common ancestor should
// not rely on which one this picks.
func MergeBase(r *git.Repository, a, b ginternals.Oid) (ginternals.Oid, error) {
	setA, err := ancestors(r, a)
	if err != nil {
		return ginternals.NullOid, err
	}

	visited := map[ginternals.Oid]struct{}{}
	queue := []ginternals.Oid{b}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}

		if _, ok := setA[id]; ok {
			return id, nil
		}

		c, err := r.GetCommit(id)
		if err != nil {
			return ginternals.NullOid, err
		}
		queue = append(queue, c.ParentIDs()...)
	}
	return ginternals.NullOid, ErrNoMergeBase
}

// Merge merges theirs into the branch currently pointed at by ref.
func Merge(r *git.Repository, ref string, theirs ginternals.Oid, theirLabel string, opts Options) (*Result, error) {
	headRef, err := r.GetReference(ref)
	if err != nil {
		return nil, xerrors.Errorf("could not read %s: %w", ref, err)
	}
	ours := headRef.Target()

	if ours == theirs {
		return &Result{Outcome: OutcomeUpToDate}, nil
	}
	if anc, err := IsAncestor(r, theirs, ours); err != nil {
		return nil, err
	} else if anc {
		return &Result{Outcome: OutcomeUpToDate}, nil
	}
	if anc, err := IsAncestor(r, ours, theirs); err != nil {
		return nil, err
	} else if anc {
		theirsTree, err := r.TreeOf(theirs)
		if err != nil {
			return nil, err
		}
		if !opts.SkipWorktree {
			if err := worktree.Project(r, theirsTree, worktree.ProjectOptions{Force: true}); err != nil {
				return nil, err
			}
		}
		if _, err := r.NewReference(ref, theirs); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeFastForward, Commit: theirs}, nil
	}

	base, err := MergeBase(r, ours, theirs)
	if err != nil {
		return nil, err
	}

	baseTreeID, err := r.TreeOf(base)
	if err != nil {
		return nil, err
	}
	oursTreeID, err := r.TreeOf(ours)
	if err != nil {
		return nil, err
	}
	theirsTreeID, err := r.TreeOf(theirs)
	if err != nil {
		return nil, err
	}

	baseMap, err := r.WalkTree(baseTreeID)
	if err != nil {
		return nil, err
	}
	oursMap, err := r.WalkTree(oursTreeID)
	if err != nil {
		return nil, err
	}
	theirsMap, err := r.WalkTree(theirsTreeID)
	if err != nil {
		return nil, err
	}

	paths := unionKeys(baseMap, oursMap, theirsMap)
	sort.Strings(paths)

	idx := ginternals.NewIndex()
	conflictContent := map[string][]byte{}
	var conflicts []string

	for _, p := range paths {
		b, hasB := baseMap[p]
		o, hasO := oursMap[p]
		t, hasT := theirsMap[p]

		final, content, conflict, err := reconcilePath(r, theirLabel, b, hasB, o, hasO, t, hasT)
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", p, err)
		}
		if conflict {
			conflicts = append(conflicts, p)
			conflictContent[p] = content
			continue
		}
		if final == nil {
			continue
		}
		idx.Upsert(ginternals.IndexEntry{
			Path: p,
			ID:   final.ID,
			Mode: uint32(final.Mode),
		})
	}

	if len(conflicts) > 0 {
		if err := writeConflictState(r, idx, conflicts, conflictContent, theirs, theirLabel); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeConflict, ConflictPaths: conflicts}, nil
	}

	root, err := r.BuildRootTree(idx)
	if err != nil {
		return nil, err
	}

	c, err := r.NewCommit(ref, root, opts.Committer, &object.CommitOptions{
		Message:   fmt.Sprintf("Merge branch '%s'", theirLabel),
		Committer: opts.Committer,
		ParentsID: []ginternals.Oid{ours, theirs},
	})
	if err != nil {
		return nil, err
	}

	if !opts.SkipWorktree {
		if err := worktree.Project(r, root.ID(), worktree.ProjectOptions{Force: true}); err != nil {
			return nil, err
		}
	}

	return &Result{Outcome: OutcomeMerged, Commit: c.ID()}, nil
}

// Abort reverts an in-progress, conflicted merge: the current HEAD
// tree is re-projected onto the working tree and index, and
// MERGE_HEAD/MERGE_MSG are removed
func Abort(r *git.Repository) error {
	if _, err := r.GetReference(ginternals.MergeHead); err != nil {
		if errors.Is(err, ginternals.ErrRefNotFound) {
			return ErrNotInMerge
		}
		return err
	}

	head, err := r.GetReference(ginternals.Head)
	if err != nil {
		return err
	}
	treeID, err := r.TreeOf(head.Target())
	if err != nil {
		return err
	}
	if err := worktree.Project(r, treeID, worktree.ProjectOptions{Force: true}); err != nil {
		return err
	}

	return removeMergeState(r)
}

// writeConflictState records MERGE_HEAD/MERGE_MSG, writes every
// resolved path plus the conflict-marker blocks to the working tree,
// and persists an index containing only the paths that merged cleanly
func writeConflictState(
	r *git.Repository, idx *ginternals.Index,
	conflicts []string, conflictContent map[string][]byte,
	theirs ginternals.Oid, theirLabel string,
) error {
	if _, err := r.NewReference(ginternals.MergeHead, theirs); err != nil {
		return xerrors.Errorf("could not write %s: %w", ginternals.MergeHead, err)
	}

	msg := fmt.Sprintf("Merge branch '%s'\n\nConflicts:\n", theirLabel)
	for _, p := range conflicts {
		msg += "\t" + p + "\n"
	}
	if err := os.WriteFile(filepath.Join(r.Config.GitDirPath, mergeMsgFileName), []byte(msg), 0o644); err != nil {
		return xerrors.Errorf("could not write %s: %w", mergeMsgFileName, err)
	}

	for _, e := range idx.SortedEntries() {
		full := filepath.Join(r.Config.WorkTreePath, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			return xerrors.Errorf("could not create directory for %s: %w", e.Path, err)
		}
		blob, err := r.GetObject(e.ID)
		if err != nil {
			return xerrors.Errorf("could not read blob for %s: %w", e.Path, err)
		}
		if err := os.WriteFile(full, blob.Bytes(), 0o644); err != nil {
			return xerrors.Errorf("could not write %s: %w", e.Path, err)
		}
	}

	for _, p := range conflicts {
		full := filepath.Join(r.Config.WorkTreePath, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			return xerrors.Errorf("could not create directory for %s: %w", p, err)
		}
		if err := os.WriteFile(full, conflictContent[p], 0o644); err != nil {
			return xerrors.Errorf("could not write %s: %w", p, err)
		}
	}

	return r.WriteIndex(idx)
}

// removeMergeState deletes MERGE_HEAD/MERGE_MSG
func removeMergeState(r *git.Repository) error {
	if err := os.Remove(filepath.Join(r.Config.GitDirPath, ginternals.MergeHead)); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("could not remove %s: %w", ginternals.MergeHead, err)
	}
	if err := os.Remove(filepath.Join(r.Config.GitDirPath, mergeMsgFileName)); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("could not remove %s: %w", mergeMsgFileName, err)
	}
	return nil
}

func unionKeys(maps ...map[string]object.TreeEntry) []string {
	seen := map[string]struct{}{}
	for _, m := range maps {
		for p := range m {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

type entryState struct {
	present bool
	id      ginternals.Oid
	mode    object.TreeObjectMode
}

func stateOf(e object.TreeEntry, has bool) entryState {
	if !has {
		return entryState{}
	}
	return entryState{present: true, id: e.ID, mode: e.Mode}
}

func (s entryState) sameContent(other entryState) bool {
	return s.present == other.present && (!s.present || s.id == other.id)
}

// reconcilePath decides the outcome for a single path given its state
// in the base, ours, and theirs trees, per the merge reconciliation
// table: if ours and theirs agree there's nothing to do; if only one
// side touched the path the other side's state wins; otherwise both
// sides diverged from the base and conflict or line-merge logic takes
// over.
func reconcilePath(
	r *git.Repository, theirLabel string,
	b object.TreeEntry, hasB bool,
	o object.TreeEntry, hasO bool,
	t object.TreeEntry, hasT bool,
) (final *object.TreeEntry, conflictContent []byte, conflict bool, err error) {
	base := stateOf(b, hasB)
	ours := stateOf(o, hasO)
	theirs := stateOf(t, hasT)

	if ours.sameContent(theirs) {
		if !ours.present {
			return nil, nil, false, nil
		}
		mode := ours.mode
		if ours.mode != theirs.mode {
			mode = resolveMode(base, ours, theirs)
		}
		return &object.TreeEntry{ID: ours.id, Mode: mode}, nil, false, nil
	}

	if ours.sameContent(base) {
		if !theirs.present {
			return nil, nil, false, nil
		}
		return &object.TreeEntry{ID: theirs.id, Mode: theirs.mode}, nil, false, nil
	}
	if theirs.sameContent(base) {
		if !ours.present {
			return nil, nil, false, nil
		}
		return &object.TreeEntry{ID: ours.id, Mode: ours.mode}, nil, false, nil
	}

	// both sides diverged from base, and from each other
	if !hasB {
		content, conflicted, err := blobConflictMarkers(r, theirLabel, ours, theirs)
		if err != nil {
			return nil, nil, false, err
		}
		if !conflicted {
			blob, err := r.NewBlob(content)
			if err != nil {
				return nil, nil, false, err
			}
			return &object.TreeEntry{ID: blob.ID(), Mode: resolveMode(base, ours, theirs)}, nil, false, nil
		}
		return nil, content, true, nil
	}

	switch {
	case ours.present && !theirs.present:
		// modify/delete: keep ours, unstaged, flagged as conflicted
		blob, err := r.GetObject(ours.id)
		if err != nil {
			return nil, nil, false, err
		}
		return nil, blob.Bytes(), true, nil
	case !ours.present && theirs.present:
		// delete/modify: take theirs, unstaged, flagged as conflicted
		blob, err := r.GetObject(theirs.id)
		if err != nil {
			return nil, nil, false, err
		}
		return nil, blob.Bytes(), true, nil
	default:
		content, conflicted, err := blobConflictMarkers(r, theirLabel, ours, theirs)
		if err != nil {
			return nil, nil, false, err
		}
		if !conflicted {
			blob, err := r.NewBlob(content)
			if err != nil {
				return nil, nil, false, err
			}
			return &object.TreeEntry{ID: blob.ID(), Mode: resolveMode(base, ours, theirs)}, nil, false, nil
		}
		return nil, content, true, nil
	}
}

// resolveMode applies the mode tie-break: if only one side changed
// the mode relative to base, that side wins; if both changed to
// different modes, ours' mode is kept. A mode disagreement alone never
// makes the path conflicted: when both sides hold the same content the
// path merges cleanly with ours' mode
func resolveMode(base, ours, theirs entryState) object.TreeObjectMode {
	if ours.mode == theirs.mode {
		return ours.mode
	}
	if ours.mode == base.mode {
		return theirs.mode
	}
	if theirs.mode == base.mode {
		return ours.mode
	}
	return ours.mode
}

// blobConflictMarkers compares ours and theirs line by line: when
// every line is identical it returns ours' content, otherwise (a
// differing line, a different line count, or binary content) it
// returns a conflict-marker block. The base version is not consulted,
// so changes made by each side on different lines are not combined.
func blobConflictMarkers(r *git.Repository, theirLabel string, ours, theirs entryState) (content []byte, conflict bool, err error) {
	var oursBytes, theirsBytes []byte
	if ours.present {
		o, err := r.GetObject(ours.id)
		if err != nil {
			return nil, false, err
		}
		oursBytes = o.Bytes()
	}
	if theirs.present {
		o, err := r.GetObject(theirs.id)
		if err != nil {
			return nil, false, err
		}
		theirsBytes = o.Bytes()
	}

	if isBinary(oursBytes) || isBinary(theirsBytes) {
		return conflictBlock(oursBytes, theirsBytes, theirLabel), true, nil
	}

	oursLines := splitLines(oursBytes)
	theirsLines := splitLines(theirsBytes)
	if len(oursLines) != len(theirsLines) {
		return conflictBlock(oursBytes, theirsBytes, theirLabel), true, nil
	}

	diff := 0
	for i := range oursLines {
		if !bytes.Equal(oursLines[i], theirsLines[i]) {
			diff++
		}
	}
	if diff == 0 {
		return oursBytes, false, nil
	}

	return conflictBlock(oursBytes, theirsBytes, theirLabel), true, nil
}

func isBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

func splitLines(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.SplitAfter(b, []byte{'\n'})
	if len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func conflictBlock(ours, theirs []byte, theirLabel string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< HEAD\n")
	buf.Write(ours)
	if len(ours) > 0 && ours[len(ours)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(">>>>>>> ")
	buf.WriteString(theirLabel)
	buf.WriteByte('\n')
	return buf.Bytes()
}
