// risset is a package manager for csound external plugins. It keeps a
// local clone of the community plugin index, installs the matching
// binaries for the running csound and builds the plugin documentation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/csound-plugins/risset/internal/config"
	"github.com/csound-plugins/risset/internal/download"
	"github.com/csound-plugins/risset/internal/index"
	"github.com/csound-plugins/risset/internal/install"
	"github.com/csound-plugins/risset/internal/journal"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/version"
)

type rissetCLI struct {
	Debug   bool             `help:"Print debug information."`
	Update  bool             `help:"Update the plugin index before running the command."`
	Version kong.VersionFlag `help:"Print the version and exit."`

	List        listCmd        `cmd:"" help:"List all available plugins."`
	Show        showCmd        `cmd:"" help:"Show information about a plugin."`
	Install     installCmd     `cmd:"" help:"Install or upgrade plugins."`
	Remove      removeCmd      `cmd:"" help:"Remove installed plugins."`
	UpdateCmd   updateCmd      `cmd:"" name:"update" help:"Update the plugin index and all cloned plugin repositories."`
	Upgrade     upgradeCmd     `cmd:"" help:"Upgrade installed plugins to their latest version."`
	Info        infoCmd        `cmd:"" help:"Output information about risset and its plugins as json."`
	Download    downloadCmd    `cmd:"" help:"Download the binary of a plugin without installing it."`
	Man         manCmd         `cmd:"" help:"Show the man page of an opcode."`
	Makedocs    makedocsCmd    `cmd:"" help:"Build the documentation for all defined plugins."`
	Listopcodes listOpcodesCmd `cmd:"" name:"listopcodes" help:"List all opcodes defined by the catalogued plugins."`
	Validate    validateCmd    `cmd:"" help:"Validate a plugin manifest."`
	Resetcache  resetCacheCmd  `cmd:"" name:"resetcache" help:"Remove the cloned repositories and the catalogue snapshot."`
	History     historyCmd     `cmd:"" help:"Show the recorded install operations."`
}

func (c *rissetCLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// app carries what every command needs: the context, the configuration
// and lazily opened collaborators.
type app struct {
	ctx    context.Context
	cfg    *config.Config
	update bool
	jnl    *journal.Store
}

// index loads the plugin catalogue, honoring the global update flag.
func (a *app) index(update bool) (*index.MainIndex, error) {
	return index.Load(a.ctx, a.cfg, index.Options{Update: update || a.update})
}

func (a *app) installer(idx *index.MainIndex) *install.Installer {
	return install.New(a.cfg, idx.Host(), idx.Target(), idx.Git(), download.NewClient(), a.journal())
}

// journal opens the operation journal once. A journal that cannot be
// opened disables recording instead of failing the command.
func (a *app) journal() *journal.Store {
	if a.jnl != nil {
		return a.jnl
	}
	jnl, err := journal.Open(a.cfg.JournalPath())
	if err != nil {
		slog.Warn("could not open the journal", logfields.Error(err))
		return nil
	}
	a.jnl = jnl
	return a.jnl
}

func (a *app) Close() {
	if a.jnl != nil {
		_ = a.jnl.Close()
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var cli rissetCLI
	kctx := kong.Parse(&cli,
		kong.Name("risset"),
		kong.Description("A package manager for csound external plugins."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Full()},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("could not load the configuration", logfields.Error(err))
		return 1
	}
	if err := cfg.EnsureDirs(); err != nil {
		slog.Error("could not create the data directories", logfields.Error(err))
		return 1
	}

	a := &app{ctx: ctx, cfg: cfg, update: cli.Update}
	defer a.Close()

	if err := kctx.Run(a); err != nil {
		slog.Error("command failed", logfields.Error(err))
		return 1
	}
	return 0
}
