package main

import (
	"fmt"
	"io"

	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
)

type lsTreeCmdFlags struct {
	recurse bool
}

func newLsTreeCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls-tree <revision>",
		Short: "List the contents of a tree object",
		Args:  cobra.ExactArgs(1),
	}

	flags := lsTreeCmdFlags{}
	cmd.Flags().BoolVarP(&flags.recurse, "recurse", "r", false, "Recurse into sub-trees.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return lsTreeCmd(cmd.OutOrStdout(), cfg, flags, args[0])
	}
	return cmd
}

func lsTreeCmd(out io.Writer, cfg *globalFlags, flags lsTreeCmdFlags, rev string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	oid, err := revision.Resolve(r, rev)
	if err != nil {
		return err
	}
	treeID, err := r.TreeOf(oid)
	if err != nil {
		return err
	}

	if flags.recurse {
		entries, err := r.WalkTree(treeID)
		if err != nil {
			return err
		}
		for p, e := range entries {
			fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType().String(), e.ID.String(), p)
		}
		return nil
	}

	tree, err := r.GetTree(treeID)
	if err != nil {
		return err
	}
	for _, e := range tree.Entries() {
		fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType().String(), e.ID.String(), e.Path)
	}
	return nil
}
