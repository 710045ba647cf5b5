package main

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/index"
	"github.com/csound-plugins/risset/internal/install"
	"github.com/csound-plugins/risset/internal/installed"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/plugin"
)

type installCmd struct {
	Force   bool     `help:"Force installation even if the plugin is already installed."`
	Plugins []string `arg:"" help:"Plugins to install. Glob patterns are supported (quote them to prevent shell expansion)."`
}

func (c *installCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	plugins := matchPlugins(idx, c.Plugins)
	if len(plugins) == 0 {
		return errors.Newf(errors.KindInvalidArgument, "no plugins matched %s", strings.Join(c.Plugins, ", "))
	}
	ins := a.installer(idx)
	var problems []string
	for _, p := range plugins {
		info := idx.InstalledInfo(p)
		if info != nil {
			if (info.Version == "" || info.Version == installed.UnknownVersion) && !c.Force {
				problems = append(problems,
					fmt.Sprintf("plugin %s is already installed, use --force to force a reinstall", p.Name))
				continue
			}
			ok, reason := install.ShouldUpgrade(info.Version, p.Version, c.Force)
			if !ok {
				slog.Info("skipping plugin", logfields.Plugin(p.Name), slog.String("reason", reason))
				continue
			}
			if info.Version != installed.UnknownVersion && info.Version != "" && info.Version != p.Version {
				slog.Info("updating plugin", logfields.Plugin(p.Name),
					slog.String("from", info.Version), slog.String("to", p.Version))
			}
		} else {
			slog.Debug("plugin not installed, installing", logfields.Plugin(p.Name))
		}
		if err := ins.Install(a.ctx, p, idx.CsoundVersion(), true); err != nil {
			problems = append(problems, err.Error())
		}
	}
	idx.Invalidate()
	if len(problems) > 0 {
		return errors.Newf(errors.KindInstallFailure, "%s", strings.Join(problems, "; "))
	}
	return nil
}

type removeCmd struct {
	KeepAssets bool     `help:"Keep the assets installed by the plugin."`
	Plugins    []string `arg:"" help:"Plugins to remove."`
}

func (c *removeCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	ins := a.installer(idx)
	var problems []string
	for _, name := range c.Plugins {
		p := idx.Plugin(name)
		if p == nil {
			problems = append(problems, fmt.Sprintf("plugin %s is not defined, known plugins: %s",
				name, strings.Join(idx.PluginNames(), ", ")))
			continue
		}
		info := idx.InstalledInfo(p)
		if info == nil {
			problems = append(problems, fmt.Sprintf("plugin %s is not installed", name))
			continue
		}
		if err := ins.Uninstall(a.ctx, p, info.DllPath, info.InSystemFolder, !c.KeepAssets); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		slog.Info("removed plugin", logfields.Plugin(p.Name))
	}
	idx.Invalidate()
	if len(problems) > 0 {
		return errors.Newf(errors.KindInstallFailure, "%s", strings.Join(problems, "; "))
	}
	return nil
}

type upgradeCmd struct {
	All     bool     `help:"Upgrade every installed plugin."`
	Force   bool     `help:"Reinstall plugins even when the installed version is up to date."`
	Plugins []string `arg:"" optional:"" help:"Plugins to upgrade. Without arguments all installed plugins are considered."`
}

func (c *upgradeCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	var plugins []*plugin.Plugin
	if len(c.Plugins) == 0 || c.All {
		plugins = idx.Sorted()
	} else {
		plugins = matchPlugins(idx, c.Plugins)
		if len(plugins) == 0 {
			return errors.Newf(errors.KindInvalidArgument, "no plugins matched %s", strings.Join(c.Plugins, ", "))
		}
	}
	ins := a.installer(idx)
	upgraded := 0
	var problems []string
	for _, p := range plugins {
		info := idx.InstalledInfo(p)
		if info == nil {
			continue
		}
		ok, reason := install.ShouldUpgrade(info.Version, p.Version, c.Force)
		if !ok {
			slog.Debug("not upgrading plugin", logfields.Plugin(p.Name), slog.String("reason", reason))
			continue
		}
		slog.Info("upgrading plugin", logfields.Plugin(p.Name),
			slog.String("from", info.Version), slog.String("to", p.Version))
		if err := ins.Install(a.ctx, p, idx.CsoundVersion(), true); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		upgraded++
	}
	idx.Invalidate()
	if len(problems) > 0 {
		return errors.Newf(errors.KindInstallFailure, "%s", strings.Join(problems, "; "))
	}
	if upgraded == 0 {
		slog.Info("all installed plugins are up to date")
	}
	return nil
}

// matchPlugins expands glob patterns against the catalogue, returning
// the matching plugins deduplicated and sorted by name. Matching is
// case insensitive, like the plugin names themselves.
func matchPlugins(idx *index.MainIndex, patterns []string) []*plugin.Plugin {
	names := idx.PluginNames()
	seen := make(map[string]bool)
	var matched []*plugin.Plugin
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		for _, name := range names {
			ok, err := path.Match(pattern, strings.ToLower(name))
			if err != nil {
				slog.Warn("malformed pattern", slog.String("pattern", pattern), logfields.Error(err))
				break
			}
			if ok && !seen[name] {
				seen[name] = true
				matched = append(matched, idx.Plugin(name))
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return matched
}
