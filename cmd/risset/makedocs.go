package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/csound-plugins/risset/internal/docs"
	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
)

type makedocsCmd struct {
	Outfolder     string `short:"o" help:"Destination folder for the documentation. Defaults to the managed documentation folder." type:"path"`
	Onlyinstalled bool   `help:"Build documentation only for installed plugins."`
	CheckLinks    bool   `help:"Verify the internal links of the generated html pages."`
}

func (c *makedocsCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	dest := c.Outfolder
	if dest == "" {
		dest = a.cfg.ManDir()
	}
	// The index repository may ship its own stylesheet.
	stylesheet := filepath.Join(a.cfg.DataRepoDir(), "assets", "syntax-highlighting.css")
	if _, err := os.Stat(stylesheet); err != nil {
		stylesheet = ""
	}
	opts := docs.GenerateOptions{
		Dest:          dest,
		BuildHTML:     true,
		OnlyInstalled: c.Onlyinstalled,
		Stylesheet:    stylesheet,
		OpcodesXML:    a.cfg.OpcodesXMLPath(),
	}
	if err := docs.Generate(idx.PluginDocs(a.ctx), opts); err != nil {
		return err
	}
	slog.Info("documentation generated", logfields.Path(dest))
	slog.Info("saved opcodes.xml", logfields.Path(opts.OpcodesXML))

	if c.CheckLinks {
		broken, err := docs.CheckLinks(filepath.Join(dest, "site"))
		if err != nil {
			return err
		}
		for _, link := range broken {
			slog.Error("broken link", slog.String("page", link.Page), logfields.URL(link.URL))
		}
		if len(broken) > 0 {
			return errors.Newf(errors.KindInternal, "found %d broken links", len(broken))
		}
	}
	return nil
}
