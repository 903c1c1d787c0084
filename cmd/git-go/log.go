package main

import (
	"fmt"
	"io"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
)

type logCmdFlags struct {
	maxCount int
}

func newLogCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [revision]",
		Short: "Show commit logs",
		Args:  cobra.MaximumNArgs(1),
	}

	flags := logCmdFlags{}
	cmd.Flags().IntVarP(&flags.maxCount, "max-count", "n", 0, "Limit the number of commits to output.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		rev := ginternals.Head
		if len(args) > 0 {
			rev = args[0]
		}
		return logCmd(cmd.OutOrStdout(), cfg, flags, rev)
	}
	return cmd
}

// logCmd walks first-parent history starting at rev, printing each
// commit in a "git log"-like layout: commit id, merge parents, author,
// date, then the indented message
func logCmd(out io.Writer, cfg *globalFlags, flags logCmdFlags, rev string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	start, err := revision.Resolve(r, rev)
	if err != nil {
		return err
	}
	cur, err := r.DereferenceToCommit(start)
	if err != nil {
		return err
	}

	printed := 0
	for !cur.IsZero() {
		if flags.maxCount > 0 && printed >= flags.maxCount {
			break
		}

		c, err := r.GetCommit(cur)
		if err != nil {
			return err
		}
		printCommit(out, c)
		printed++

		parents := c.ParentIDs()
		if len(parents) == 0 {
			break
		}
		cur = parents[0]
	}
	return nil
}

func printCommit(out io.Writer, c *object.Commit) {
	fmt.Fprintf(out, "commit %s\n", c.ID().String())
	if len(c.ParentIDs()) > 1 {
		fmt.Fprint(out, "Merge:")
		for _, p := range c.ParentIDs() {
			fmt.Fprintf(out, " %s", p.String()[:7])
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "Author: %s <%s>\n", c.Author().Name, c.Author().Email)
	fmt.Fprintf(out, "Date:   %s\n\n", c.Author().Time)
	fmt.Fprintf(out, "    %s\n\n", c.Message())
}
