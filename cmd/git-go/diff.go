package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/spf13/cobra"
)

type diffCmdFlags struct {
	cached bool
}

func newDiffCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show changes between the working tree, the index, and HEAD",
	}

	flags := diffCmdFlags{}
	cmd.Flags().BoolVar(&flags.cached, "cached", false, "Show staged changes (index vs HEAD) instead of unstaged ones (working tree vs index).")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return diffCmd(cmd.OutOrStdout(), cfg, flags)
	}
	return cmd
}

// diffCmd prints a line-level diff for every path whose content
// differs between two trees: the index and HEAD with --cached, or the
// working tree and the index otherwise
func diffCmd(out io.Writer, cfg *globalFlags, flags diffCmdFlags) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}

	if flags.cached {
		headTree := map[string]object.TreeEntry{}
		if head, herr := r.GetReference(ginternals.Head); herr == nil && !head.Target().IsZero() {
			c, cerr := r.GetCommit(head.Target())
			if cerr == nil {
				headTree, err = r.WalkTree(c.TreeID())
				if err != nil {
					return err
				}
			}
		}

		for _, e := range idx.SortedEntries() {
			before := []byte{}
			if h, ok := headTree[e.Path]; ok && h.ID != e.ID {
				blob, err := r.GetObject(h.ID)
				if err != nil {
					return err
				}
				before = blob.Bytes()
			} else if ok {
				continue
			}
			blob, err := r.GetObject(e.ID)
			if err != nil {
				return err
			}
			printDiff(out, e.Path, before, blob.Bytes())
		}
		return nil
	}

	for _, e := range idx.SortedEntries() {
		full := filepath.Join(r.Config.WorkTreePath, filepath.FromSlash(e.Path))
		content, rerr := os.ReadFile(full) //nolint:gosec // path comes from our own index
		if rerr != nil {
			continue
		}
		if object.New(object.TypeBlob, content).ID() == e.ID {
			continue
		}
		blob, err := r.GetObject(e.ID)
		if err != nil {
			return err
		}
		printDiff(out, e.Path, blob.Bytes(), content)
	}
	return nil
}

// printDiff prints a minimal unified-style diff: every line present in
// before but not at the same position in after is shown removed,
// every line present in after but not at the same position in before
// is shown added. It doesn't realign on insertions/deletions the way
// a real LCS-based diff would.
func printDiff(out io.Writer, path string, before, after []byte) {
	fmt.Fprintf(out, "diff --git a/%s b/%s\n", path, path)
	fmt.Fprintf(out, "--- a/%s\n", path)
	fmt.Fprintf(out, "+++ b/%s\n", path)

	beforeLines := splitLines(before)
	afterLines := splitLines(after)
	max := len(beforeLines)
	if len(afterLines) > max {
		max = len(afterLines)
	}
	for i := 0; i < max; i++ {
		var b, a []byte
		if i < len(beforeLines) {
			b = beforeLines[i]
		}
		if i < len(afterLines) {
			a = afterLines[i]
		}
		if bytes.Equal(b, a) {
			continue
		}
		if b != nil {
			fmt.Fprintf(out, "-%s", b)
		}
		if a != nil {
			fmt.Fprintf(out, "+%s", a)
		}
	}
}

func splitLines(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	parts := bytes.SplitAfter(b, []byte{'\n'})
	if len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	return parts
}
