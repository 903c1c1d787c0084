// Package worktree synchronizes a repository's working tree and index
// with a target tree, the way "git switch"/"git checkout" and the
// tail end of "git merge" do.
package worktree

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	git "github.com/Nivl/minigit"
	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"golang.org/x/xerrors"
)

// ErrWouldClobber is returned when projecting a tree onto the working
// tree would overwrite local changes that aren't staged nor committed
var ErrWouldClobber = errors.New("local changes would be overwritten")

// ProjectOptions controls how Project behaves
type ProjectOptions struct {
	// Force skips the safety precheck entirely
	Force bool
}

// CanSafelyProject reports, for every path tracked by the index, whether
// projecting target would destroy a local modification: a path whose
// HEAD-tree and target-tree entries differ, and whose on-disk content no
// longer matches what's staged. It returns the list of paths that would
// be clobbered; an empty list means the projection is safe.
func CanSafelyProject(r *git.Repository, target ginternals.Oid) ([]string, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}

	headMap, err := currentHeadTree(r)
	if err != nil {
		return nil, err
	}
	targetMap, err := r.WalkTree(target)
	if err != nil {
		return nil, err
	}

	var unsafe []string
	for _, e := range idx.SortedEntries() {
		h, hasH := headMap[e.Path]
		t, hasT := targetMap[e.Path]
		if hasH == hasT && (!hasH || h.ID == t.ID) {
			continue
		}

		full := filepath.Join(r.Config.WorkTreePath, filepath.FromSlash(e.Path))
		content, err := ioutil.ReadFile(full) //nolint:gosec // path comes from our own index
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, xerrors.Errorf("could not read %s: %w", e.Path, err)
		}
		if object.New(object.TypeBlob, content).ID() != e.ID {
			unsafe = append(unsafe, e.Path)
		}
	}
	return unsafe, nil
}

// Project synchronizes the working tree and the index with target:
// paths present in HEAD's tree but absent from target are deleted
// (pruning any directory left empty), paths in target are written
// with their recorded mode, and the index is rebuilt to exactly match
// target. Like the rest of the core, this isn't transactional: a crash
// mid-projection leaves partial state on disk, and re-running Project
// must converge on the same result.
func Project(r *git.Repository, target ginternals.Oid, opts ProjectOptions) error {
	if !opts.Force {
		unsafe, err := CanSafelyProject(r, target)
		if err != nil {
			return err
		}
		if len(unsafe) > 0 {
			return xerrors.Errorf("%s: %w", strings.Join(unsafe, ", "), ErrWouldClobber)
		}
	}

	headMap, err := currentHeadTree(r)
	if err != nil {
		return err
	}
	targetMap, err := r.WalkTree(target)
	if err != nil {
		return err
	}

	root := r.Config.WorkTreePath

	for p := range headMap {
		if _, ok := targetMap[p]; ok {
			continue
		}
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return xerrors.Errorf("could not remove %s: %w", p, err)
		}
		pruneEmptyDirs(root, filepath.Dir(full))
	}

	newIdx := ginternals.NewIndex()
	for p, e := range targetMap {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			return xerrors.Errorf("could not create directory for %s: %w", p, err)
		}

		blob, err := r.GetObject(e.ID)
		if err != nil {
			return xerrors.Errorf("could not read blob for %s: %w", p, err)
		}
		content := blob.Bytes()

		if err := materialize(full, e.Mode, content); err != nil {
			return xerrors.Errorf("could not write %s: %w", p, err)
		}

		info, err := os.Lstat(full)
		if err != nil {
			return xerrors.Errorf("could not stat %s: %w", p, err)
		}

		newIdx.Upsert(ginternals.IndexEntry{
			Path:       p,
			ID:         e.ID,
			Mode:       uint32(e.Mode),
			Size:       uint32(len(content)),
			CreatedAt:  info.ModTime(),
			ModifiedAt: info.ModTime(),
		})
	}

	return r.WriteIndex(newIdx)
}

// materialize writes content to full according to mode's semantics:
// a regular file for 100644/100755 (with the executable bit set for
// the latter), or a symlink whose target is content decoded as a path
// for 120000
func materialize(full string, mode object.TreeObjectMode, content []byte) error {
	_ = os.Remove(full)

	switch mode { //nolint:exhaustive // only file-producing modes reach here
	case object.ModeSymLink:
		return os.Symlink(string(content), full)
	case object.ModeExecutable:
		return ioutil.WriteFile(full, content, 0o755) //nolint:gosec // intentionally executable
	default:
		return ioutil.WriteFile(full, content, 0o644)
	}
}

// pruneEmptyDirs removes dir, and then each of its now-empty parents,
// stopping as soon as a non-empty directory or root is reached
func pruneEmptyDirs(root, dir string) {
	for {
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// currentHeadTree returns the flattened tree HEAD currently points at,
// or an empty map if HEAD is unborn (no commits yet)
func currentHeadTree(r *git.Repository) (map[string]object.TreeEntry, error) {
	ref, err := r.GetReference(ginternals.Head)
	if err != nil {
		if errors.Is(err, ginternals.ErrRefNotFound) {
			return map[string]object.TreeEntry{}, nil
		}
		return nil, err
	}
	if ref.Target().IsZero() {
		return map[string]object.TreeEntry{}, nil
	}

	c, err := r.GetCommit(ref.Target())
	if err != nil {
		return map[string]object.TreeEntry{}, nil
	}
	return r.WalkTree(c.TreeID())
}
