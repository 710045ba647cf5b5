package main

import (
	"log/slog"
	"os"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
)

type updateCmd struct{}

func (c *updateCmd) Run(a *app) error {
	idx, err := a.index(true)
	if err != nil {
		return err
	}
	slog.Info("index updated", logfields.Count(len(idx.Plugins)),
		slog.String("index_version", idx.Version))
	return nil
}

type resetCacheCmd struct{}

// Run removes the cloned repositories and the catalogue snapshot. The
// next command rebuilds everything from scratch.
func (c *resetCacheCmd) Run(a *app) error {
	for _, path := range []string{
		a.cfg.DataRepoDir(),
		a.cfg.ClonesDir(),
		a.cfg.SnapshotPath(),
	} {
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, errors.KindIO, "could not remove %s", path)
		}
		slog.Debug("removed cached path", logfields.Path(path))
	}
	return nil
}
