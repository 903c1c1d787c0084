package main

import (
	"fmt"
	"io"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

func newShowCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [revision]",
		Short: "Show various types of objects",
		Args:  cobra.MaximumNArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		rev := ginternals.Head
		if len(args) > 0 {
			rev = args[0]
		}
		return showCmd(cmd.OutOrStdout(), cfg, rev)
	}
	return cmd
}

// showCmd resolves rev and prints it: a commit as its "git log"-style
// header followed by the entries of its root tree, a tree as its
// entries, a tag as its name, tagger and message, and a blob as its
// raw content
func showCmd(out io.Writer, cfg *globalFlags, rev string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	oid, err := revision.Resolve(r, rev)
	if err != nil {
		return err
	}

	o, err := r.GetObject(oid)
	if err != nil {
		return err
	}

	switch o.Type() {
	case object.TypeCommit:
		c, err := o.AsCommit()
		if err != nil {
			return err
		}
		printCommit(out, c)
		tree, err := r.GetTree(c.TreeID())
		if err != nil {
			return err
		}
		for _, e := range tree.Entries() {
			fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType().String(), e.ID.String(), e.Path)
		}
	case object.TypeTree:
		tree, err := o.AsTree()
		if err != nil {
			return err
		}
		for _, e := range tree.Entries() {
			fmt.Fprintf(out, "%06o %s %s\t%s\n", e.Mode, e.Mode.ObjectType().String(), e.ID.String(), e.Path)
		}
	case object.TypeTag:
		tag, err := o.AsTag()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "tag %s\n", tag.Name())
		fmt.Fprintf(out, "Tagger: %s <%s>\n\n", tag.Tagger().Name, tag.Tagger().Email)
		fmt.Fprintln(out, tag.Message())
	case object.TypeBlob:
		fmt.Fprint(out, string(o.Bytes()))
	default:
		return xerrors.Errorf("show not supported for type %s", o.Type().String())
	}
	return nil
}
