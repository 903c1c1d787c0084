package main

import (
	"io/fs"
	"os"
	"path/filepath"

	git "github.com/Nivl/minigit"
	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

func newAddCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <pathspec>...",
		Short: "Add file contents to the index",
		Args:  cobra.MinimumNArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return addCmd(cfg, args)
	}
	return cmd
}

// addCmd stages the content of every file matched by args, relative
// to the work tree root, creating a blob for each and recording it in
// the index
func addCmd(cfg *globalFlags, args []string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}

	for _, pathspec := range args {
		abs := filepath.Join(r.Config.WorkTreePath, pathspec)
		walkErr := filepath.Walk(abs, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if info.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			return addFile(r, idx, path)
		})
		if walkErr != nil {
			return xerrors.Errorf("could not add %s: %w", pathspec, walkErr)
		}
	}

	return r.WriteIndex(idx)
}

func addFile(r *git.Repository, idx *ginternals.Index, absPath string) error {
	info, err := os.Lstat(absPath)
	if err != nil {
		return err
	}

	var content []byte
	mode := uint32(object.ModeFile)
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(absPath)
		if err != nil {
			return err
		}
		content = []byte(target)
		mode = uint32(object.ModeSymLink)
	case info.Mode()&0o111 != 0:
		content, err = os.ReadFile(absPath) //nolint:gosec // path comes from a local walk
		if err != nil {
			return err
		}
		mode = uint32(object.ModeExecutable)
	default:
		content, err = os.ReadFile(absPath) //nolint:gosec // path comes from a local walk
		if err != nil {
			return err
		}
	}

	blob, err := r.NewBlob(content)
	if err != nil {
		return err
	}

	relPath, err := filepath.Rel(r.Config.WorkTreePath, absPath)
	if err != nil {
		return err
	}

	idx.Upsert(ginternals.IndexEntry{
		Path:       filepath.ToSlash(relPath),
		ID:         blob.ID(),
		Mode:       mode,
		Size:       uint32(len(content)),
		ModifiedAt: info.ModTime(),
		CreatedAt:  info.ModTime(),
	})
	return nil
}
