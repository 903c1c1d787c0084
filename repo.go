// Package git implements a small subset of Git as a library: object
// storage, references, trees, commits, and tags. It is organized the
// way the real thing is, just a lot smaller.
package git

import (
	"errors"
	"path/filepath"

	"github.com/Nivl/minigit/backend"
	"github.com/Nivl/minigit/backend/fsbackend"
	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/config"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/gitpath"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// List of errors returned by the Repository struct
var (
	ErrRepositoryNotExist           = errors.New("repository does not exist")
	ErrRepositoryUnsupportedVersion = errors.New("repository nor supported")
	ErrRepositoryExists             = errors.New("repository already exists")
	// ErrTagNotFound is returned when a tag cannot be found
	ErrTagNotFound = errors.New("tag not found")
	// ErrTagExists is returned when trying to create a tag that
	// already exists
	ErrTagExists = errors.New("tag already exists")
)

// Repository represent a git repository
// A Git repository is the .git/ folder inside a project.
// This repository tracks all changes made to files in your project,
// building a history over time.
// https://blog.axosoft.com/learning-git-repository/
type Repository struct {
	// Config contains all the paths and settings used to locate the
	// repository's data
	Config *config.Config

	dotGit   backend.Backend
	workTree afero.Fs
}

// InitOptions contains all the optional data used to initialized a
// repository
type InitOptions struct {
	// IsBare represents whether a bare repository will be created or not
	IsBare bool
	// InitialBranchName is the name of the branch HEAD points to right
	// after init. Defaults to ginternals.Master
	InitialBranchName string
	// Symlink tells the backend the git directory lives outside of the
	// working tree and that a `.git` file pointing to it should be
	// created instead of a `.git` directory
	Symlink bool
}

// InitRepository initialize a new git repository by creating the .git
// directory in the given path, which is where almost everything that
// Git stores and manipulates is located.
// https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain#ch10-git-internals
func InitRepository(repoPath string) (*Repository, error) {
	return InitRepositoryWithOptions(repoPath, InitOptions{})
}

// InitRepositoryWithOptions initialize a new git repository by creating
// the .git directory in the given path, which is where almost everything
// that Git stores and manipulates is located.
func InitRepositoryWithOptions(repoPath string, opts InitOptions) (*Repository, error) {
	cfg, err := newRepoConfig(repoPath, opts.IsBare)
	if err != nil {
		return nil, err
	}
	return InitRepositoryWithParams(cfg, opts)
}

// InitRepositoryWithParams initialize a new git repository using the
// provided config
func InitRepositoryWithParams(cfg *config.Config, opts InitOptions) (*Repository, error) {
	r := &Repository{
		Config: cfg,
		dotGit: fsbackend.New(cfg.GitDirPath),
	}
	if !opts.IsBare {
		r.workTree = afero.NewOsFs()
	}

	if err := r.dotGit.Init(); err != nil {
		return nil, err
	}

	branchName := opts.InitialBranchName
	if branchName == "" {
		branchName = ginternals.Master
	}
	ref := ginternals.NewSymbolicReference(ginternals.Head, ginternals.LocalBranchFullName(branchName))
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, ErrRepositoryExists
		}
		return nil, err
	}

	return r, nil
}

// OpenOptions contains all the optional data used to open a
// repository
type OpenOptions struct {
	// IsBare represents whether the repository has no working tree
	IsBare bool
}

// OpenRepository loads an existing git repository by reading its
// config file, and returns a Repository instance
func OpenRepository(repoPath string) (*Repository, error) {
	return OpenRepositoryWithOptions(repoPath, OpenOptions{})
}

// OpenRepositoryWithOptions loads an existing git repository by reading
// its config file, and returns a Repository instance
func OpenRepositoryWithOptions(repoPath string, opts OpenOptions) (*Repository, error) {
	cfg, err := newRepoConfig(repoPath, opts.IsBare)
	if err != nil {
		return nil, err
	}
	return OpenRepositoryWithParams(cfg, opts)
}

// OpenRepositoryWithParams loads an existing git repository using the
// provided config, and returns a Repository instance
func OpenRepositoryWithParams(cfg *config.Config, opts OpenOptions) (*Repository, error) {
	r := &Repository{
		Config: cfg,
		dotGit: fsbackend.New(cfg.GitDirPath),
	}
	if !opts.IsBare {
		r.workTree = afero.NewOsFs()
	}

	// since we can't check if the directory exists on disk to
	// validate if the repo exists, we're instead going to see if HEAD
	// exists (since it should always be there)
	if _, err := r.dotGit.Reference(ginternals.Head); err != nil {
		return nil, ErrRepositoryNotExist
	}

	return r, nil
}

// newRepoConfig builds a *config.Config rooted at repoPath, used by
// the path-based Init/Open helpers
func newRepoConfig(repoPath string, isBare bool) (*config.Config, error) {
	gitDirPath := repoPath
	if !isBare {
		gitDirPath = filepath.Join(repoPath, gitpath.DotGitPath)
	}
	opts := config.LoadConfigOptions{
		WorkingDirectory: repoPath,
		GitDirPath:       gitDirPath,
		IsBare:           isBare,
		SkipGitDirLookUp: true,
	}
	if !isBare {
		opts.WorkTreePath = repoPath
	}
	cfg, err := config.LoadConfigSkipEnv(opts)
	if err != nil {
		return nil, xerrors.Errorf("could not create config: %w", err)
	}
	return cfg, nil
}

// Close frees the resources held by the repository
func (r *Repository) Close() error {
	return r.dotGit.Close()
}

// IsBare returns whether the repository has no working tree
func (r *Repository) IsBare() bool {
	return r.workTree == nil
}

// GetObject returns the object matching the given Oid
func (r *Repository) GetObject(oid ginternals.Oid) (*object.Object, error) {
	return r.dotGit.Object(oid)
}

// NewBlob creates, persists, and returns a new Blob object
func (r *Repository) NewBlob(data []byte) (*object.Blob, error) {
	o := object.New(object.TypeBlob, data)
	if _, err := r.dotGit.WriteObject(o); err != nil {
		return nil, xerrors.Errorf("could not persist blob: %w", err)
	}
	return object.NewBlob(o), nil
}

// GetCommit returns the commit matching the given Oid
func (r *Repository) GetCommit(oid ginternals.Oid) (*object.Commit, error) {
	o, err := r.GetObject(oid)
	if err != nil {
		return nil, err
	}
	return o.AsCommit()
}

// GetTree returns the tree matching the given Oid
func (r *Repository) GetTree(oid ginternals.Oid) (*object.Tree, error) {
	o, err := r.GetObject(oid)
	if err != nil {
		return nil, err
	}
	return o.AsTree()
}

// GetReference returns the reference that has the given name
func (r *Repository) GetReference(name string) (*ginternals.Reference, error) {
	return r.dotGit.Reference(name)
}

// NewReference creates and persists a new reference pointing to an Oid,
// overwriting any reference that already has the same name
func (r *Repository) NewReference(name string, target ginternals.Oid) (*ginternals.Reference, error) {
	ref := ginternals.NewReference(name, target)
	if err := r.dotGit.WriteReference(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// NewSymbolicReference creates and persists a new reference pointing
// to another reference, overwriting any reference that already has
// the same name
func (r *Repository) NewSymbolicReference(name, target string) (*ginternals.Reference, error) {
	ref := ginternals.NewSymbolicReference(name, target)
	if err := r.dotGit.WriteReference(ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// validateParents makes sure all the given oids point to actual commits
func (r *Repository) validateParents(parents []ginternals.Oid) error {
	for _, id := range parents {
		o, err := r.GetObject(id)
		if err != nil {
			return xerrors.Errorf("could not find parent %s: %w", id.String(), err)
		}
		if o.Type() != object.TypeCommit {
			return xerrors.Errorf("invalid type for parent %s: %w", id.String(), object.ErrObjectInvalid)
		}
	}
	return nil
}

// NewCommit creates a commit, persists it, and moves the given branch
// reference to point to it
func (r *Repository) NewCommit(branchRefName string, tree *object.Tree, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	if err := r.validateParents(opts.ParentsID); err != nil {
		return nil, err
	}

	c := object.NewCommit(tree.ID(), author, opts)
	if _, err := r.dotGit.WriteObject(c.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist commit: %w", err)
	}

	if _, err := r.NewReference(branchRefName, c.ID()); err != nil {
		return nil, xerrors.Errorf("could not update %s: %w", branchRefName, err)
	}

	return c, nil
}

// NewDetachedCommit creates and persists a commit without moving any
// reference
func (r *Repository) NewDetachedCommit(tree *object.Tree, author object.Signature, opts *object.CommitOptions) (*object.Commit, error) {
	if err := r.validateParents(opts.ParentsID); err != nil {
		return nil, err
	}

	c := object.NewCommit(tree.ID(), author, opts)
	if _, err := r.dotGit.WriteObject(c.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist commit: %w", err)
	}

	return c, nil
}

// GetTag returns the reference of the tag that has the given name
func (r *Repository) GetTag(name string) (*ginternals.Reference, error) {
	ref, err := r.dotGit.Reference(ginternals.LocalTagFullName(name))
	if err != nil {
		if errors.Is(err, ginternals.ErrRefNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return ref, nil
}

// NewTag creates an annotated tag, persists it, and creates the
// reference pointing to it
func (r *Repository) NewTag(p *object.TagParams) (*object.Tag, error) {
	has, err := r.dotGit.HasObject(p.Target.ID())
	if err != nil {
		return nil, xerrors.Errorf("could not check if target exists: %w", err)
	}
	if !has {
		return nil, xerrors.Errorf("target %s is not persisted: %w", p.Target.ID().String(), object.ErrObjectInvalid)
	}

	tag := object.NewTag(p)

	refName := ginternals.LocalTagFullName(p.Name)
	ref := ginternals.NewReference(refName, tag.ID())
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, ErrTagExists
		}
		return nil, err
	}

	if _, err := r.dotGit.WriteObject(tag.ToObject()); err != nil {
		return nil, xerrors.Errorf("could not persist tag: %w", err)
	}

	return tag, nil
}

// NewLightweightTag creates a reference pointing directly to the given
// target. Unlike NewTag, no tag object is created
func (r *Repository) NewLightweightTag(name string, target ginternals.Oid) (*ginternals.Reference, error) {
	has, err := r.dotGit.HasObject(target)
	if err != nil {
		return nil, xerrors.Errorf("could not check if target exists: %w", err)
	}
	if !has {
		return nil, xerrors.Errorf("target %s is not persisted: %w", target.String(), object.ErrObjectInvalid)
	}

	refName := ginternals.LocalTagFullName(name)
	ref := ginternals.NewReference(refName, target)
	if err := r.dotGit.WriteReferenceSafe(ref); err != nil {
		if errors.Is(err, ginternals.ErrRefExists) {
			return nil, ErrTagExists
		}
		return nil, err
	}
	return ref, nil
}
