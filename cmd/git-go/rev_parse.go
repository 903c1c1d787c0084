package main

import (
	"fmt"
	"io"

	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
)

func newRevParseCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rev-parse <revision>",
		Short: "Pick out and massage parameters",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return revParseCmd(cmd.OutOrStdout(), cfg, args[0])
	}
	return cmd
}

func revParseCmd(out io.Writer, cfg *globalFlags, rev string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	oid, err := revision.Resolve(r, rev)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, oid.String())
	return nil
}
