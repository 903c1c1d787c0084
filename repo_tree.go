package git

import (
	"errors"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"golang.org/x/xerrors"
)

// maxTagChain bounds how many tag objects can be chained through
// (tag -> tag -> ... -> commit/tree) before giving up. Matches the
// depth used for symbolic reference resolution.
const maxTagChain = 8

// ErrCyclicTag is returned when following a chain of tag objects
// doesn't terminate within maxTagChain hops
var ErrCyclicTag = errors.New("cyclic tag reference")

// ExpandOid expands a, possibly partial, hex oid prefix into the full
// oid of the object it uniquely designates
func (r *Repository) ExpandOid(prefix string) (ginternals.Oid, error) {
	return r.dotGit.ExpandOid(prefix)
}

// DereferenceToCommit follows id through any number of tag objects and
// returns the commit it ultimately points at. If id already points at
// a commit, it is returned unchanged
func (r *Repository) DereferenceToCommit(id ginternals.Oid) (ginternals.Oid, error) {
	cur := id
	for i := 0; i < maxTagChain; i++ {
		o, err := r.GetObject(cur)
		if err != nil {
			return ginternals.NullOid, err
		}
		if o.Type() != object.TypeTag {
			if o.Type() != object.TypeCommit {
				return ginternals.NullOid, xerrors.Errorf("%s: %w", cur.String(), object.ErrObjectInvalid)
			}
			return cur, nil
		}
		tag, err := o.AsTag()
		if err != nil {
			return ginternals.NullOid, err
		}
		cur = tag.Target()
	}
	return ginternals.NullOid, ErrCyclicTag
}

// TreeOf follows id to the tree it designates: if id is a tree, it's
// returned as-is; if it's a commit, its tree is returned; if it's a
// tag, the chain is followed (through any number of further tags)
// until a commit or tree is reached
func (r *Repository) TreeOf(id ginternals.Oid) (ginternals.Oid, error) {
	cur := id
	for i := 0; i < maxTagChain; i++ {
		o, err := r.GetObject(cur)
		if err != nil {
			return ginternals.NullOid, err
		}
		switch o.Type() { //nolint:exhaustive // only tree/commit/tag are meaningful here
		case object.TypeTree:
			return cur, nil
		case object.TypeCommit:
			c, err := o.AsCommit()
			if err != nil {
				return ginternals.NullOid, err
			}
			return c.TreeID(), nil
		case object.TypeTag:
			tag, err := o.AsTag()
			if err != nil {
				return ginternals.NullOid, err
			}
			cur = tag.Target()
		default:
			return ginternals.NullOid, xerrors.Errorf("%s: %w", cur.String(), object.ErrObjectInvalid)
		}
	}
	return ginternals.NullOid, ErrCyclicTag
}

// WalkTree recursively walks every entry reachable from the given
// tree, depth-first, and returns a flat map of every non-tree entry
// keyed by its full slash-separated path
func (r *Repository) WalkTree(treeID ginternals.Oid) (map[string]object.TreeEntry, error) {
	out := map[string]object.TreeEntry{}
	if err := r.walkTree(treeID, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) walkTree(treeID ginternals.Oid, prefix string, out map[string]object.TreeEntry) error {
	t, err := r.GetTree(treeID)
	if err != nil {
		return err
	}
	for _, e := range t.Entries() {
		p := e.Path
		if prefix != "" {
			p = prefix + "/" + e.Path
		}
		if e.Mode == object.ModeDirectory {
			if err := r.walkTree(e.ID, p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = object.TreeEntry{Path: p, ID: e.ID, Mode: e.Mode}
	}
	return nil
}
