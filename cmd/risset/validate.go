package main

import (
	"log/slog"

	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/plugin"
	"github.com/csound-plugins/risset/internal/watch"
)

type validateCmd struct {
	Watch    bool   `help:"Keep watching the manifest and re-validate on every change."`
	Manifest string `arg:"" optional:"" default:"risset.json" help:"Path of the plugin manifest to validate." type:"path"`
}

func (c *validateCmd) Run(a *app) error {
	if !c.Watch {
		return validateManifest(c.Manifest)
	}
	// In watch mode a broken manifest is reported but does not end the
	// command, the point is to re-check after every save.
	if err := validateManifest(c.Manifest); err != nil {
		slog.Error("manifest is invalid", logfields.Path(c.Manifest), logfields.Error(err))
	}
	watcher, err := watch.NewFileWatcher(c.Manifest, watch.DefaultDebounce, func(path string) {
		if err := validateManifest(path); err != nil {
			slog.Error("manifest is invalid", logfields.Path(path), logfields.Error(err))
		}
	})
	if err != nil {
		return err
	}
	slog.Info("watching manifest", logfields.Path(watcher.Path()))
	return watcher.Run(a.ctx)
}

func validateManifest(path string) error {
	p, err := plugin.ReadFile(path, plugin.DecodeOptions{Strict: true})
	if err != nil {
		return err
	}
	slog.Info("manifest is valid", logfields.Plugin(p.Name), logfields.Version(p.Version),
		logfields.Count(len(p.Opcodes)))
	return nil
}
