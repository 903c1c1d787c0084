package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Nivl/minigit/ginternals"
	"github.com/Nivl/minigit/ginternals/object"
	"github.com/Nivl/minigit/internal/errutil"
	"github.com/Nivl/minigit/revision"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

type tagCmdFlags struct {
	annotate bool
	message  string
	delete   string
}

func newTagCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag [name] [revision]",
		Short: "Create, list, or delete tags",
		Args:  cobra.MaximumNArgs(2),
	}

	flags := tagCmdFlags{}
	cmd.Flags().BoolVarP(&flags.annotate, "annotate", "a", false, "Make an unsigned, annotated tag object.")
	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "Use the given tag message.")
	cmd.Flags().StringVarP(&flags.delete, "delete", "d", "", "Delete a tag.")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		name, rev := "", ginternals.Head
		if len(args) > 0 {
			name = args[0]
		}
		if len(args) > 1 {
			rev = args[1]
		}
		return tagCmd(cmd.OutOrStdout(), cfg, flags, name, rev)
	}
	return cmd
}

// tagCmd lists every tag when name is empty and -d isn't set, creates
// a tag (lightweight, or annotated with -a) pointing at rev when name
// is given, or deletes the tag named by -d
func tagCmd(out io.Writer, cfg *globalFlags, flags tagCmdFlags, name, rev string) (err error) {
	r, err := loadRepository(cfg)
	if err != nil {
		return err
	}
	defer errutil.Close(r, &err)

	if flags.delete != "" {
		full := ginternals.LocalTagFullName(flags.delete)
		if _, err := r.GetReference(full); err != nil {
			return err
		}
		if err := os.Remove(filepath.Join(r.Config.GitDirPath, filepath.FromSlash(full))); err != nil {
			return xerrors.Errorf("could not delete tag %s: %w", flags.delete, err)
		}
		fmt.Fprintf(out, "Deleted tag %s\n", flags.delete)
		return nil
	}

	if name != "" {
		target, err := revision.Resolve(r, rev)
		if err != nil {
			return err
		}

		if flags.annotate {
			targetObj, err := r.GetObject(target)
			if err != nil {
				return err
			}
			_, err = r.NewTag(&object.TagParams{
				Name:    name,
				Target:  targetObj,
				Tagger:  authorSignature(cfg),
				Message: flags.message,
			})
			return err
		}

		_, err = r.NewLightweightTag(name, target)
		return err
	}

	tags, err := r.ListTags()
	if err != nil {
		return err
	}
	for _, t := range tags {
		fmt.Fprintln(out, t)
	}
	return nil
}
