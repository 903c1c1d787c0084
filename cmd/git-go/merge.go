package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/mergeutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
)

type mergeCmdFlags struct {
	abort bool
}

func newMergeCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge [branch]",
		Short: "Join two or more development histories together",
		Args:  cobra.MaximumNArgs(1),
	}

	flags := mergeCmdFlags{}
	cmd.Flags().BoolVar(&flags.abort, "abort", false, "Abort the current conflict resolution process, and try to reconstruct the pre-merge state.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		theirs := ""
		if len(args) > 0 {
			theirs = args[0]
		}
		return mergeCmd(cmd.OutOrStdout(), cfg, flags, theirs)
	}
	return cmd
}

func mergeCmd(out io.Writer, cfg *globalFlags, flags mergeCmdFlags, theirs string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	if flags.abort {
		if err := mergeutil.Abort(r); err != nil {
			if errors.Is(err, mergeutil.ErrNotInMerge) {
				return errors.New("there is no merge to abort")
			}
			return err
		}
		return nil
	}

	if theirs == "" {
		return errors.New("merge requires a branch, tag, or commit to merge")
	}

	branchRef, _, err := r.HeadBranchRef()
	if err != nil {
		return err
	}

	theirsOid, err := revision.Resolve(r, theirs)
	if err != nil {
		return err
	}
	theirsCommit, err := r.DereferenceToCommit(theirsOid)
	if err != nil {
		return err
	}

	res, err := mergeutil.Merge(r, branchRef, theirsCommit, theirs, mergeutil.Options{
		Committer: authorSignature(cfg),
	})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case mergeutil.OutcomeUpToDate:
		fmt.Fprintln(out, "Already up to date.")
	case mergeutil.OutcomeFastForward:
		fmt.Fprintf(out, "Fast-forward\nHEAD is now at %s\n", res.Commit.String()[:7])
	case mergeutil.OutcomeMerged:
		fmt.Fprintf(out, "Merge made by the 'recursive' strategy.\n%s\n", res.Commit.String()[:7])
	case mergeutil.OutcomeConflict:
		fmt.Fprintln(out, "Automatic merge failed; fix conflicts and then commit the result.")
		for _, p := range res.ConflictPaths {
			fmt.Fprintf(out, "CONFLICT (content): Merge conflict in %s\n", p)
		}
	}
	return nil
}
