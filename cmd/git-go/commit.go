package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/spf13/cobra"
)

var errEmptyMessage = errors.New("commit message required")

type commitCmdFlags struct {
	message string
}

func newCommitCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record changes to the repository",
	}

	flags := commitCmdFlags{}
	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "Use the given <msg> as the commit message.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return commitCmd(cmd.OutOrStdout(), cfg, flags)
	}
	return cmd
}

// commitCmd builds a tree out of the current index, and creates a
// commit on top of it, parented to whatever HEAD currently points at
func commitCmd(out io.Writer, cfg *globalFlags, flags commitCmdFlags) (err error) {
	if flags.message == "" {
		return errEmptyMessage
	}

	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}

	tree, err := r.BuildRootTree(idx)
	if err != nil {
		return err
	}

	branchRef, parent, err := r.HeadBranchRef()
	if err != nil {
		return err
	}
	var parents []ginternals.Oid
	if !parent.IsZero() {
		parents = []ginternals.Oid{parent}
	}

	sig := authorSignature(cfg)
	c, err := r.NewCommit(branchRef, tree, sig, &object.CommitOptions{
		Message:   flags.message,
		Committer: sig,
		ParentsID: parents,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s\n", c.ID().String()[:7], flags.message)
	return nil
}
