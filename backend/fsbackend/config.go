package fsbackend

import (
	"path/filepath"

	"github.com/Nivl/minigit/internal/gitpath"
	"golang.org/x/xerrors"
	"gopkg.in/ini.v1"
)

// .git/config keys used when initializing a repository
const (
	cfgCore                  = "core"
	cfgCoreFormatVersion     = "repositoryformatversion"
	cfgCoreFileMode          = "filemode"
	cfgCoreBare              = "bare"
	cfgCoreLogAllRefUpdate   = "logallrefupdates"
	cfgCoreIgnoreCase        = "ignorecase"
	cfgCorePrecomposeUnicode = "precomposeunicode"
)

// setDefaultCfg sets and persists the default git configuration for
// the repository
func (b *Backend) setDefaultCfg() error {
	cfg := ini.Empty()

	core, err := cfg.NewSection(cfgCore)
	if err != nil {
		return xerrors.Errorf("could not create core section: %w", err)
	}
	coreCfg := map[string]string{
		cfgCoreFormatVersion:     "0",
		cfgCoreFileMode:          "true",
		cfgCoreBare:              "false",
		cfgCoreLogAllRefUpdate:   "true",
		cfgCoreIgnoreCase:        "true",
		cfgCorePrecomposeUnicode: "true",
	}
	for k, v := range coreCfg {
		if _, err := core.NewKey(k, v); err != nil {
			return xerrors.Errorf("could not set %s: %w", k, err)
		}
	}
	return cfg.SaveTo(filepath.Join(b.root, gitpath.ConfigPath))
}
