package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/spf13/cobra"
)

func newStatusCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the working tree status",
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return statusCmd(cmd.OutOrStdout(), cfg)
	}
	return cmd
}

// statusCmd reports, for every path known to the index or the working
// tree, whether it's staged, modified since being staged, or
// untracked. Paths present in HEAD but removed from the index are not
// reported.
func statusCmd(out io.Writer, cfg *globalFlags) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	branch, _, err := r.CurrentBranch()
	if err == nil && branch != "" {
		fmt.Fprintf(out, "On branch %s\n", branch)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}

	headTree := map[string]object.TreeEntry{}
	head, err := r.GetReference(ginternals.Head)
	if err == nil && !head.Target().IsZero() {
		c, err := r.GetCommit(head.Target())
		if err == nil {
			headTree, err = r.WalkTree(c.TreeID())
			if err != nil {
				return err
			}
		}
	}

	var staged, modified []string
	seen := map[string]struct{}{}
	for _, e := range idx.SortedEntries() {
		seen[e.Path] = struct{}{}
		if h, ok := headTree[e.Path]; !ok || h.ID != e.ID {
			staged = append(staged, e.Path)
		}

		full := filepath.Join(r.Config.WorkTreePath, filepath.FromSlash(e.Path))
		content, rerr := os.ReadFile(full) //nolint:gosec // path comes from our own index
		switch {
		case rerr != nil:
			modified = append(modified, e.Path)
		case object.New(object.TypeBlob, content).ID() != e.ID:
			modified = append(modified, e.Path)
		}
	}

	var untracked []string
	_ = filepath.Walk(r.Config.WorkTreePath, func(path string, info os.FileInfo, ferr error) error {
		if ferr != nil || info.IsDir() {
			if info != nil && info.IsDir() && info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(r.Config.WorkTreePath, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if _, ok := seen[rel]; !ok {
			untracked = append(untracked, rel)
		}
		return nil
	})

	sort.Strings(staged)
	sort.Strings(modified)
	sort.Strings(untracked)

	if len(staged) > 0 {
		fmt.Fprintln(out, "\nChanges to be committed:")
		for _, p := range staged {
			fmt.Fprintf(out, "\tstaged: %s\n", p)
		}
	}
	if len(modified) > 0 {
		fmt.Fprintln(out, "\nChanges not staged for commit:")
		for _, p := range modified {
			fmt.Fprintf(out, "\tmodified: %s\n", p)
		}
	}
	if len(untracked) > 0 {
		fmt.Fprintln(out, "\nUntracked files:")
		for _, p := range untracked {
			fmt.Fprintf(out, "\t%s\n", p)
		}
	}
	if len(staged) == 0 && len(modified) == 0 && len(untracked) == 0 {
		fmt.Fprintln(out, "nothing to commit, working tree clean")
	}

	return nil
}
