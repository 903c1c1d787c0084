package main

import (
	"fmt"
	"io"

	git "github.com/Nivl/minigit"
	"github.com/Nivl/minigit/ginternals/config"
	"github.com/Nivl/minigit/ginternals/object"
)

// defaultSignatureName/Email are used when neither the author nor the
// committer environment variables are set
const (
	defaultSignatureName  = "minigit"
	defaultSignatureEmail = "minigit@localhost"
)

func loadRepository(cfg *globalFlags) (*git.Repository, error) {
	p, err := config.LoadConfig(cfg.env, config.LoadConfigOptions{
		WorkingDirectory: cfg.C.String(),
		GitDirPath:       cfg.GitDir,
		WorkTreePath:     cfg.WorkTree,
		IsBare:           cfg.Bare,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create param: %w", err)
	}

	// run the command
	return git.OpenRepositoryWithParams(p, git.OpenOptions{
		IsBare: cfg.Bare,
	})
}

func fprintln(quiet bool, out io.Writer, msg ...interface{}) {
	if !quiet {
		fmt.Fprintln(out, msg...)
	}
}

func fprintf(quiet bool, out io.Writer, format string, a ...interface{}) {
	if !quiet {
		fmt.Fprintf(out, format, a...)
	}
}

// authorSignature builds the author/committer signature used by
// commit-creating commands, from GIT_AUTHOR_NAME/GIT_AUTHOR_EMAIL (or
// GIT_COMMITTER_NAME/GIT_COMMITTER_EMAIL as a fallback), defaulting to
// a generic identity when none of those are set
func authorSignature(cfg *globalFlags) object.Signature {
	name := firstNonEmpty(cfg.env.Get("GIT_AUTHOR_NAME"), cfg.env.Get("GIT_COMMITTER_NAME"), defaultSignatureName)
	email := firstNonEmpty(cfg.env.Get("GIT_AUTHOR_EMAIL"), cfg.env.Get("GIT_COMMITTER_EMAIL"), defaultSignatureEmail)
	return object.NewSignature(name, email)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
