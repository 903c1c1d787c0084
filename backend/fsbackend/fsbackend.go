// Package fsbackend contains an implementation of the backend.Backend
// interface for the filesystem
package fsbackend

import (
	"path/filepath"
	"sync"

	"github.com/Nivl/minigit/backend"
	"github.com/Nivl/minigit/internal/cache"
	"github.com/Nivl/minigit/internal/gitpath"
	"github.com/Nivl/minigit/internal/syncutil"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// Backend is a Backend implementation that uses the filesystem to store data
type Backend struct {
	fs   afero.Fs
	root string

	objectMu     *syncutil.NamedMutex
	looseObjects sync.Map
	objectCache  *cache.LRU
}

// New returns a new Backend object that uses the real filesystem
func New(dotGitPath string) *Backend {
	return NewWithFs(afero.NewOsFs(), dotGitPath)
}

// objectMuSize is the number of mutexes used to guard concurrent access
// to loose objects. Two different oids are allowed to collide on the
// same mutex; this only trades a bit of extra contention for a bounded
// memory footprint.
const objectMuSize = 64

// objectCacheSize is the number of decoded objects kept in memory to
// avoid re-reading and re-inflating the same loose object from disk.
const objectCacheSize = 1024

// NewWithFs returns a new Backend object backed by the given filesystem.
// This is mostly useful for testing against afero.NewMemMapFs()
func NewWithFs(fs afero.Fs, dotGitPath string) *Backend {
	return &Backend{
		fs:          fs,
		root:        dotGitPath,
		objectMu:    syncutil.NewNamedMutex(objectMuSize),
		objectCache: cache.NewLRU(objectCacheSize),
	}
}

// path returns the absolute path of a file/directory relative to the
// root of the git directory
func (b *Backend) path(rel string) string {
	return filepath.Join(b.root, rel)
}

// Path returns the root directory used by the backend to store its data
func (b *Backend) Path() string {
	return b.root
}

// Close frees the resources held by the backend
func (b *Backend) Close() error {
	return nil
}

// Init initializes a repository
func (b *Backend) Init() error {
	dirs := []string{
		gitpath.ObjectsPath,
		gitpath.RefsTagsPath,
		gitpath.RefsHeadsPath,
		gitpath.ObjectsInfoPath,
		gitpath.ObjectsPackPath,
	}
	for _, d := range dirs {
		fullPath := b.path(d)
		if err := b.fs.MkdirAll(fullPath, 0o750); err != nil {
			return xerrors.Errorf("could not create directory %s: %w", d, err)
		}
	}

	files := []struct {
		path    string
		content []byte
	}{
		{
			path:    gitpath.DescriptionPath,
			content: []byte("Unnamed repository; edit this file 'description' to name the repository.\n"),
		},
	}
	for _, f := range files {
		fullPath := b.path(f.path)
		if err := afero.WriteFile(b.fs, fullPath, f.content, 0o644); err != nil {
			return xerrors.Errorf("could not create file %s: %w", f.path, err)
		}
	}

	if err := b.setDefaultCfg(); err != nil {
		return xerrors.Errorf("could not set the default config: %w", err)
	}

	return nil
}
