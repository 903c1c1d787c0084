package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

type branchCmdFlags struct {
	delete     string
	startPoint string
}

func newBranchCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch [name]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(1),
	}

	flags := branchCmdFlags{}
	cmd.Flags().StringVarP(&flags.delete, "delete", "d", "", "Delete a branch.")
	cmd.Flags().StringVar(&flags.startPoint, "start-point", "", "The new branch's head will point at this commit, instead of HEAD.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		return branchCmd(cmd.OutOrStdout(), cfg, flags, name)
	}
	return cmd
}

// branchCmd lists every local branch when name is empty and -d isn't
// set, creates a new branch pointing at HEAD (or at --start-point)
// when name is given, or deletes the branch named by -d
func branchCmd(out io.Writer, cfg *globalFlags, flags branchCmdFlags, name string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	if flags.delete != "" {
		full := ginternals.LocalBranchFullName(flags.delete)
		if _, err := r.GetReference(full); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(r.Config.GitDirPath, filepath.FromSlash(full))); err != nil {
			return xerrors.Errorf("could not delete branch %s: %w", flags.delete, err)
		}
		fmt.Fprintf(out, "Deleted branch %s\n", flags.delete)
		return nil
	}

	if name != "" {
		startPoint := flags.startPoint
		if startPoint == "" {
			startPoint = ginternals.Head
		}
		target, err := revision.Resolve(r, startPoint)
		if err != nil {
			return err
		}
		if _, err := r.NewReference(ginternals.LocalBranchFullName(name), target); err != nil {
			return err
		}
		return nil
	}

	branches, err := r.ListBranches()
	if err != nil {
		return err
	}
	current, _, _ := r.CurrentBranch()
	for _, b := range branches {
		prefix := "  "
		if b == current {
			prefix = "* "
		}
		fmt.Fprintf(out, "%s%s\n", prefix, b)
	}
	return nil
}
