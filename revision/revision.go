// Package revision implements the rev-parse grammar: turning strings
// like "HEAD~2^{tree}" or "main:cmd/git-go/main.go" into the id of the
// object they designate.
package revision

import (
	"errors"
	"strconv"
	"strings"

	git "github.com/Nivl/minigit"
	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"golang.org/x/xerrors"
)

// Errors returned while resolving a revision. ginternals.ErrObjectAmbiguous
// can also bubble up unwrapped from a hex-prefix lookup.
var (
	// ErrUnknownRevision is returned when a revision's base doesn't
	// name anything: not HEAD, not a branch or tag, not a valid oid
	// prefix
	ErrUnknownRevision = errors.New("unknown revision")
	// ErrNoSuchParent is returned when a "^" or "~" suffix asks for a
	// parent that doesn't exist
	ErrNoSuchParent = errors.New("no such parent")
	// ErrPathNotFound is returned when the path half of a "<rev>:<path>"
	// expression can't be walked to completion
	ErrPathNotFound = errors.New("path not found")
)

// Resolve parses and resolves a revision expression into the id of
// the object it designates.
//
// Grammar:
//
//	rev       := base suffix*
//	base      := "HEAD" | branch-name | tag-name | hex-prefix(4..40)
//	suffix    := "^" digit* | "~" digits | "^{tree}"
//	path-expr := rev ":" path
func Resolve(r *git.Repository, expr string) (ginternals.Oid, error) {
	revPart, pathPart, hasPath := splitPathExpr(expr)

	oid, err := resolveRev(r, revPart)
	if err != nil {
		return ginternals.NullOid, err
	}
	if !hasPath {
		return oid, nil
	}
	return resolvePath(r, oid, pathPart)
}

// splitPathExpr splits a "<rev>:<path>" expression on its first colon.
// ":" never appears in a valid ref name or hex prefix, so the first
// occurrence unambiguously separates the two halves.
func splitPathExpr(expr string) (rev, path string, hasPath bool) {
	i := strings.IndexByte(expr, ':')
	if i < 0 {
		return expr, "", false
	}
	return expr[:i], expr[i+1:], true
}

type suffixKind int

const (
	suffixParent suffixKind = iota
	suffixAncestor
	suffixTree
)

type suffix struct {
	kind suffixKind
	n    int
}

func resolveRev(r *git.Repository, expr string) (ginternals.Oid, error) {
	base, suffixes, err := tokenize(expr)
	if err != nil {
		return ginternals.NullOid, err
	}

	oid, err := resolveBase(r, base)
	if err != nil {
		return ginternals.NullOid, err
	}

	for _, s := range suffixes {
		oid, err = applySuffix(r, oid, s)
		if err != nil {
			return ginternals.NullOid, err
		}
	}
	return oid, nil
}

// tokenize splits expr into its base and the ordered list of suffixes
// applied to it
func tokenize(expr string) (string, []suffix, error) {
	i := 0
	for i < len(expr) && expr[i] != '^' && expr[i] != '~' {
		i++
	}
	base := expr[:i]
	if base == "" {
		return "", nil, xerrors.Errorf("%s: %w", expr, ErrUnknownRevision)
	}

	var suffixes []suffix
	for i < len(expr) {
		switch expr[i] {
		case '^':
			if strings.HasPrefix(expr[i:], "^{tree}") {
				suffixes = append(suffixes, suffix{kind: suffixTree})
				i += len("^{tree}")
				continue
			}
			i++
			j := digitsEnd(expr, i)
			n := 1
			if j > i {
				v, err := strconv.Atoi(expr[i:j])
				if err != nil {
					return "", nil, xerrors.Errorf("%s: %w", expr, ErrUnknownRevision)
				}
				n = v
			}
			suffixes = append(suffixes, suffix{kind: suffixParent, n: n})
			i = j
		case '~':
			i++
			j := digitsEnd(expr, i)
			if j == i {
				return "", nil, xerrors.Errorf("%s: %w", expr, ErrUnknownRevision)
			}
			v, err := strconv.Atoi(expr[i:j])
			if err != nil {
				return "", nil, xerrors.Errorf("%s: %w", expr, ErrUnknownRevision)
			}
			suffixes = append(suffixes, suffix{kind: suffixAncestor, n: v})
			i = j
		default:
			return "", nil, xerrors.Errorf("%s: %w", expr, ErrUnknownRevision)
		}
	}
	return base, suffixes, nil
}

func digitsEnd(s string, from int) int {
	j := from
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	return j
}

// resolveBase resolves the non-suffixed part of a revision: HEAD, a
// branch name, a tag name (branch wins on collision), or a hex prefix
func resolveBase(r *git.Repository, base string) (ginternals.Oid, error) {
	if base == "" {
		return ginternals.NullOid, xerrors.Errorf("%s: %w", base, ErrUnknownRevision)
	}

	if base == ginternals.Head {
		ref, err := r.GetReference(ginternals.Head)
		if err != nil {
			return ginternals.NullOid, xerrors.Errorf("HEAD: %w", ErrUnknownRevision)
		}
		return ref.Target(), nil
	}

	if ref, err := r.GetReference(ginternals.LocalBranchFullName(base)); err == nil {
		return ref.Target(), nil
	}
	if ref, err := r.GetReference(ginternals.LocalTagFullName(base)); err == nil {
		return r.DereferenceToCommit(ref.Target())
	}

	if ginternals.IsValidHex(base) {
		oid, err := r.ExpandOid(base)
		if err != nil {
			if errors.Is(err, ginternals.ErrObjectAmbiguous) {
				return ginternals.NullOid, err
			}
			return ginternals.NullOid, xerrors.Errorf("%s: %w", base, ErrUnknownRevision)
		}
		return oid, nil
	}

	return ginternals.NullOid, xerrors.Errorf("%s: %w", base, ErrUnknownRevision)
}

func applySuffix(r *git.Repository, oid ginternals.Oid, s suffix) (ginternals.Oid, error) {
	switch s.kind {
	case suffixTree:
		return r.TreeOf(oid)
	case suffixParent:
		if s.n == 0 {
			return r.DereferenceToCommit(oid)
		}
		c, err := commitOf(r, oid)
		if err != nil {
			return ginternals.NullOid, err
		}
		parents := c.ParentIDs()
		if s.n > len(parents) {
			return ginternals.NullOid, xerrors.Errorf("%s^%d: %w", oid.String(), s.n, ErrNoSuchParent)
		}
		return parents[s.n-1], nil
	case suffixAncestor:
		cur := oid
		for i := 0; i < s.n; i++ {
			c, err := commitOf(r, cur)
			if err != nil {
				return ginternals.NullOid, err
			}
			parents := c.ParentIDs()
			if len(parents) == 0 {
				return ginternals.NullOid, xerrors.Errorf("%s~%d: %w", oid.String(), s.n, ErrNoSuchParent)
			}
			cur = parents[0]
		}
		return cur, nil
	default:
		return ginternals.NullOid, xerrors.Errorf("%s: %w", oid.String(), ErrUnknownRevision)
	}
}

func commitOf(r *git.Repository, oid ginternals.Oid) (*object.Commit, error) {
	commitOid, err := r.DereferenceToCommit(oid)
	if err != nil {
		return nil, err
	}
	return r.GetCommit(commitOid)
}

// resolvePath walks the tree designated by revOid along path,
// requiring every component but possibly the last to name a subtree
func resolvePath(r *git.Repository, revOid ginternals.Oid, p string) (ginternals.Oid, error) {
	treeID, err := r.TreeOf(revOid)
	if err != nil {
		return ginternals.NullOid, err
	}
	if p == "" {
		return treeID, nil
	}

	parts := strings.Split(p, "/")
	cur := treeID
	for i, part := range parts {
		t, err := r.GetTree(cur)
		if err != nil {
			return ginternals.NullOid, xerrors.Errorf("%s: %w", p, ErrPathNotFound)
		}

		var found *object.TreeEntry
		for _, e := range t.Entries() {
			if e.Path == part {
				ee := e
				found = &ee
				break
			}
		}
		if found == nil {
			return ginternals.NullOid, xerrors.Errorf("%s: %w", p, ErrPathNotFound)
		}
		if i < len(parts)-1 && found.Mode != object.ModeDirectory {
			return ginternals.NullOid, xerrors.Errorf("%s: %w", p, ErrPathNotFound)
		}
		cur = found.ID
	}
	return cur, nil
}
