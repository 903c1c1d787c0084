package git

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"golang.org/x/xerrors"
)

// indexFileName is the name of the index file inside the git
// directory
const indexFileName = "index"

// IndexPath returns the absolute path of the repository's index file
func (r *Repository) IndexPath() string {
	return filepath.Join(r.dotGit.Path(), indexFileName)
}

// ReadIndex reads the repository's index file. A missing index file
// is not an error: it's treated the same as an empty one
func (r *Repository) ReadIndex() (idx *ginternals.Index, err error) {
	f, err := os.Open(r.IndexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return ginternals.NewIndex(), nil
		}
		return nil, xerrors.Errorf("could not open index: %w", err)
	}
	defer errutil.Close(f, &err)

	idx, err = ginternals.ReadIndex(f)
	if err != nil {
		return nil, xerrors.Errorf("could not read index: %w", err)
	}
	return idx, nil
}

// WriteIndex persists the given index to disk, replacing whatever was
// there before. The write goes through a temporary file that gets
// renamed into place, so a reader never observes a partially-written
// index; the same rename-based approach a <git-dir>/index.lock could
// layer on top of
func (r *Repository) WriteIndex(idx *ginternals.Index) (err error) {
	dest := r.IndexPath()
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return xerrors.Errorf("could not create git directory: %w", err)
	}

	tmp := dest + ".lock"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return xerrors.Errorf("could not create index lock file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp)
	}()

	if err := idx.Write(f); err != nil {
		_ = f.Close()
		return xerrors.Errorf("could not write index: %w", err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("could not close index: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return xerrors.Errorf("could not replace index: %w", err)
	}
	return nil
}

// dirNode groups index entries hierarchically so BuildRootTree can
// turn a flat {path -> (oid, mode)} projection into a properly nested
// tree of Tree objects
type dirNode struct {
	files map[string]ginternals.IndexEntry
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{
		files: map[string]ginternals.IndexEntry{},
		dirs:  map[string]*dirNode{},
	}
}

// BuildRootTree builds, persists, and returns the root tree matching
// the index's current content. Entries are grouped into subtrees by
// path, so two indexes with the same {path -> (oid, mode)} projection
// always produce the same root tree id, regardless of the order
// entries were inserted in
func (r *Repository) BuildRootTree(idx *ginternals.Index) (*object.Tree, error) {
	root := newDirNode()
	for _, e := range idx.SortedEntries() {
		insertEntry(root, splitPath(e.Path), e)
	}
	return r.writeDirNode(root)
}

// splitPath splits a slash-separated path into its components
func splitPath(p string) []string {
	return strings.Split(p, "/")
}

func insertEntry(node *dirNode, parts []string, e ginternals.IndexEntry) {
	if len(parts) == 1 {
		node.files[parts[0]] = e
		return
	}
	child, ok := node.dirs[parts[0]]
	if !ok {
		child = newDirNode()
		node.dirs[parts[0]] = child
	}
	insertEntry(child, parts[1:], e)
}

func (r *Repository) writeDirNode(node *dirNode) (*object.Tree, error) {
	names := make([]string, 0, len(node.files)+len(node.dirs))
	for n := range node.files {
		names = append(names, n)
	}
	for n := range node.dirs {
		names = append(names, n)
	}
	sort.Strings(names)

	entries := make([]object.TreeEntry, 0, len(names))
	for _, n := range names {
		if child, ok := node.dirs[n]; ok {
			childTree, err := r.writeDirNode(child)
			if err != nil {
				return nil, err
			}
			entries = append(entries, object.TreeEntry{
				Path: n,
				ID:   childTree.ID(),
				Mode: object.ModeDirectory,
			})
			continue
		}
		e := node.files[n]
		entries = append(entries, object.TreeEntry{
			Path: n,
			ID:   e.ID,
			Mode: object.TreeObjectMode(e.Mode),
		})
	}

	t := object.NewTree(entries)
	o := t.ToObject()
	if _, err := r.dotGit.WriteObject(o); err != nil {
		return nil, xerrors.Errorf("could not persist tree: %w", err)
	}
	return o.AsTree()
}
