package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/index"
	"github.com/csound-plugins/risset/internal/install"
	"github.com/csound-plugins/risset/internal/installed"
)

type listCmd struct {
	JSON         bool   `help:"Output the list as json."`
	Outfile      string `short:"o" help:"Write the output to a file instead of stdout." type:"path"`
	Nameonly     bool   `help:"Print only the name of each plugin."`
	Installed    bool   `help:"List only installed plugins."`
	Notinstalled bool   `help:"List only plugins which are not installed."`
	Upgradeable  bool   `help:"List only installed plugins which can be upgraded."`
	Noheader     bool   `help:"Do not print any header."`
	Oneline      bool   `short:"1" help:"List each plugin on one line."`
}

func (c *listCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(pluginsAsDict(idx, c.Installed), c.Outfile)
	}
	header := !c.Oneline && !c.Nameonly && !c.Noheader
	c.print(idx, header)
	return nil
}

func (c *listCmd) print(idx *index.MainIndex, header bool) {
	const leftColWidth = 20
	installedOnly := c.Installed || c.Upgradeable
	if header {
		fmt.Printf("Csound version: %s\n\n", idx.CsoundVersion())
	}
	for _, p := range idx.Sorted() {
		info := idx.InstalledInfo(p)
		if info == nil && installedOnly {
			continue
		}
		if info != nil && c.Notinstalled {
			continue
		}
		if c.Upgradeable {
			if ok, _ := install.ShouldUpgrade(info.Version, p.Version, false); !ok {
				continue
			}
		}
		if c.Nameonly {
			fmt.Println(p.Name)
			continue
		}

		var status, extra []string
		if info != nil {
			switch {
			case info.Version == installed.UnknownVersion:
				status = append(status, "manual")
			case c.Oneline:
				status = append(status, info.Version)
			default:
				status = append(status, "installed: "+info.Version)
			}
			if !info.InSystemFolder && !c.Oneline {
				extra = append(extra, "Path: "+info.DllPath)
			}
		}
		statusStr := ""
		if len(status) > 0 {
			statusStr = "[" + strings.Join(status, ", ") + "]"
		}
		if p.FindBinary(idx.Target(), idx.CsoundVersion()) == nil {
			extra = append(extra,
				fmt.Sprintf("-- No binaries for %s/%s", idx.Target(), idx.CsoundVersion()),
				"   Available binaries: "+strings.Join(p.AvailableBinaries(), ", "))
		}
		descr := p.ShortDescription
		if c.Oneline {
			descr = abbrev(descr, 60)
		}
		symbol := "-"
		if info != nil {
			symbol = "*"
		}
		leftcol := fmt.Sprintf("%s /%s", p.Name, p.Version)
		fmt.Printf("%s %-*s | %s %s\n", symbol, leftColWidth, leftcol, descr, statusStr)
		for _, line := range extra {
			fmt.Printf("%s   |   %s\n", strings.Repeat(" ", leftColWidth), line)
		}
	}
	fmt.Println()
}

// pluginsAsDict renders the catalogue with its installed state into the
// json structure shared by list --json and info --full.
func pluginsAsDict(idx *index.MainIndex, installedOnly bool) map[string]any {
	out := make(map[string]any)
	for _, p := range idx.Sorted() {
		info := idx.InstalledInfo(p)
		if installedOnly && info == nil {
			continue
		}
		d := map[string]any{
			"version":           p.Version,
			"opcodes":           p.Opcodes,
			"url":               p.RepositoryURL,
			"short_description": p.ShortDescription,
			"long_description":  p.LongDescription,
			"author":            p.Author,
		}
		if info != nil {
			d["installed"] = true
			d["installed-version"] = info.Version
			d["path"] = info.DllPath
		} else {
			d["installed"] = false
			d["available"] = p.FindBinary(idx.Target(), idx.CsoundVersion()) != nil
		}
		out[p.Name] = d
	}
	return out
}

func writeJSON(v any, outfile string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "could not encode to json")
	}
	data = append(data, '\n')
	if outfile == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outfile, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not write %s", outfile)
	}
	return nil
}

func abbrev(s string, maxlen int) string {
	runes := []rune(s)
	if len(runes) <= maxlen {
		return s
	}
	return string(runes[:maxlen-1]) + "…"
}
