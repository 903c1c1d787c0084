package git

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nivl/minigit/ginternals"
)

// branchPrefix is stripped from a symbolic HEAD's target to recover a
// plain branch name
const branchPrefix = "refs/heads/"

// CurrentBranch returns the short name of the branch HEAD points at,
// and whether HEAD is actually symbolic (pointing at a branch) rather
// than detached
func (r *Repository) CurrentBranch() (name string, onBranch bool, err error) {
	head, err := r.GetReference(ginternals.Head)
	if err != nil {
		return "", false, err
	}
	if head.Type() != ginternals.SymbolicReference {
		return "", false, nil
	}
	target := head.SymbolicTarget()
	if !strings.HasPrefix(target, branchPrefix) {
		return target, true, nil
	}
	return strings.TrimPrefix(target, branchPrefix), true, nil
}

// IsDetached returns whether HEAD currently points directly at a
// commit rather than at a branch
func (r *Repository) IsDetached() (bool, error) {
	_, onBranch, err := r.CurrentBranch()
	if err != nil {
		return false, err
	}
	return !onBranch, nil
}

// ListBranches returns the short names of every local branch
func (r *Repository) ListBranches() ([]string, error) {
	return r.listRefs(ginternals.LocalBranchFullName("") + "/")
}

// ListTags returns the short names of every tag
func (r *Repository) ListTags() ([]string, error) {
	return r.listRefs(ginternals.LocalTagFullName("") + "/")
}

// HeadBranchRef returns the full ref name HEAD currently points at,
// along with the commit it resolves to (ginternals.NullOid on an
// unborn branch), without requiring that branch to already have a
// commit. GetReference(Head) can't be used for this on its own: it
// fails with ErrRefNotFound as soon as the branch it points to is
// dangling, discarding the branch name along with it.
func (r *Repository) HeadBranchRef() (ref string, commit ginternals.Oid, err error) {
	head, err := r.GetReference(ginternals.Head)
	if err == nil {
		if head.Type() == ginternals.SymbolicReference {
			return head.SymbolicTarget(), head.Target(), nil
		}
		return ginternals.Head, head.Target(), nil
	}
	if !errors.Is(err, ginternals.ErrRefNotFound) {
		return "", ginternals.NullOid, err
	}

	raw, rerr := os.ReadFile(filepath.Join(r.Config.GitDirPath, ginternals.Head))
	if rerr != nil {
		return "", ginternals.NullOid, err
	}
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "ref: ") {
		return "", ginternals.NullOid, err
	}
	return strings.TrimPrefix(s, "ref: "), ginternals.NullOid, nil
}

func (r *Repository) listRefs(prefix string) ([]string, error) {
	var names []string
	err := r.dotGit.WalkReferences(func(ref *ginternals.Reference) error {
		if strings.HasPrefix(ref.Name(), prefix) {
			names = append(names, strings.TrimPrefix(ref.Name(), prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
