package main

import (
	"io"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/spf13/cobra"
)

func newUpdateRefCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-ref <ref> <new-value>",
		Short: "Update the object name stored in a ref safely",
		Args:  cobra.ExactArgs(2),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return updateRefCmd(cmd.OutOrStdout(), cfg, args[0], args[1])
	}
	return cmd
}

func updateRefCmd(_ io.Writer, cfg *globalFlags, ref, newValue string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	oid, err := ginternals.NewOidFromStr(newValue)
	if err != nil {
		return err
	}

	_, err = r.NewReference(ref, oid)
	return err
}
