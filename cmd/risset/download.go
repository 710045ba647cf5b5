package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/csound-plugins/risset/internal/download"
	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/install"
	"github.com/csound-plugins/risset/internal/logfields"
)

type downloadCmd struct {
	Path     string `help:"Directory to download the binary into. Defaults to the current directory." type:"path"`
	Platform string `help:"Download the binary for another platform, e.g. linux-x86_64, macos-arm64, windows-x86_64."`
	Plugin   string `arg:"" help:"Plugin whose binary should be downloaded."`
}

// Run fetches the resolved binary artifact without installing it.
func (c *downloadCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	dest := c.Path
	if dest == "" {
		dest, err = os.Getwd()
		if err != nil {
			return errors.Wrap(err, errors.KindIO, "could not determine the current directory")
		}
	}
	if st, err := os.Stat(dest); err != nil || !st.IsDir() {
		return errors.Newf(errors.KindInvalidArgument, "the output folder %s does not exist", dest)
	}

	p := idx.Plugin(c.Plugin)
	if p == nil {
		return errors.Newf(errors.KindInvalidArgument, "unknown plugin %s, available plugins: %s",
			c.Plugin, strings.Join(idx.PluginNames(), ", "))
	}
	target := idx.Target()
	if c.Platform != "" {
		if err := target.UnmarshalText([]byte(c.Platform)); err != nil {
			return err
		}
	}

	ins := install.New(a.cfg, idx.Host(), target, idx.Git(), download.NewClient(), nil)
	dll, _, err := ins.ResolveBinary(a.ctx, p, idx.CsoundVersion())
	if err != nil {
		return err
	}
	outfile := filepath.Join(dest, filepath.Base(dll))
	if _, err := os.Stat(outfile); err == nil {
		return errors.Newf(errors.KindInvalidArgument, "the destination path %s already exists", outfile)
	}
	if err := copyFile(dll, outfile); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not copy the binary to %s", outfile)
	}
	digest, err := download.Sha256(outfile)
	if err != nil {
		return err
	}
	slog.Info("downloaded binary", logfields.Plugin(p.Name), logfields.Path(outfile),
		slog.String("sha256", digest))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
