package main

import (
	"fmt"
	"io"

	"github.com/Nivl/minigit/internal/errutil"
	"github.com/spf13/cobra"
)

func newSymbolicRefCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbolic-ref <name> [<ref>]",
		Short: "Read or set a symbolic reference",
		Args:  cobra.RangeArgs(1, 2),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		target := ""
		if len(args) > 1 {
			target = args[1]
		}
		return symbolicRefCmd(cmd.OutOrStdout(), cfg, args[0], target)
	}
	return cmd
}

func symbolicRefCmd(out io.Writer, cfg *globalFlags, name, target string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	if target == "" {
		ref, err := r.GetReference(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ref.SymbolicTarget())
		return nil
	}

	_, err = r.NewSymbolicReference(name, target)
	return err
}
