package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/csound-plugins/risset/internal/version"
)

type infoCmd struct {
	Full    bool   `help:"Include the full plugin catalogue."`
	Outfile string `help:"Write the output to a file instead of stdout." type:"path"`
}

func (c *infoCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	// Days since the catalogue snapshot was last refreshed, -1 when no
	// snapshot exists yet.
	days := -1
	if st, err := os.Stat(a.cfg.SnapshotPath()); err == nil {
		days = int(time.Since(st.ModTime()).Hours() / 24)
	}
	installedNames := []string{}
	for _, p := range idx.Sorted() {
		if idx.IsInstalled(a.ctx, p, false) {
			installedNames = append(installedNames, p.Name)
		}
	}
	info := map[string]any{
		"version":           version.Version,
		"index-version":     idx.Version,
		"pluginspath":       idx.UserPluginsDir(),
		"rissetroot":        a.cfg.DataDir,
		"clonespath":        a.cfg.ClonesDir(),
		"assetspath":        a.cfg.AssetsDir(),
		"htmldocs":          filepath.Join(a.cfg.ManDir(), "site"),
		"manpages":          filepath.Join(a.cfg.ManDir(), "docs", "opcodes"),
		"datarepo":          a.cfg.DataRepoDir(),
		"opcodesxml":        a.cfg.OpcodesXMLPath(),
		"days-since-update": days,
		"installed-plugins": installedNames,
	}
	if c.Full {
		info["plugins"] = pluginsAsDict(idx, false)
	}
	return writeJSON(info, c.Outfile)
}
