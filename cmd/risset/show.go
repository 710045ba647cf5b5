package main

import (
	"fmt"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
)

type showCmd struct {
	Full   bool   `help:"Show the url of each binary."`
	Plugin string `arg:"" help:"Plugin to show."`
}

func (c *showCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	p := idx.Plugin(c.Plugin)
	if p == nil {
		return errors.Newf(errors.KindInvalidArgument,
			"plugin '%s' unknown. Known plugins: %s", c.Plugin, strings.Join(idx.PluginNames(), ", "))
	}
	info := idx.InstalledInfo(p)
	fmt.Printf("\nPlugin        : %s\n", p.Name)
	fmt.Printf("Author        : %s (%s)\n", p.Author, p.Email)
	fmt.Printf("URL           : %s\n", p.RepositoryURL)
	fmt.Printf("Version       : %s\n\n", p.Version)
	if info != nil {
		manifest := "No manifest (installed manually)"
		if info.ManifestPath != "" {
			manifest = info.ManifestPath
		}
		fmt.Printf("Installed     : %s (path: %s)\n", info.Version, info.DllPath)
		fmt.Printf("Manifest      : %s\n", manifest)
	}
	fmt.Printf("Abstract      : %s\n", p.ShortDescription)
	if strings.TrimSpace(p.LongDescription) != "" {
		fmt.Println("Description:")
		for _, line := range wrap(p.LongDescription, 72) {
			fmt.Println("   ", line)
		}
	}
	fmt.Println("Opcodes:")
	for _, line := range wrap(strings.Join(p.Opcodes, ", "), 72) {
		fmt.Println("   ", line)
	}
	if len(p.Binaries) > 0 {
		fmt.Println("Binaries:")
		for _, bin := range p.Binaries {
			if c.Full {
				url := bin.URL
				if bin.ExtractPath != "" {
					url += "/" + bin.ExtractPath
				}
				fmt.Printf("    * %s/csound%s, %s\n", bin.Platform, bin.CsoundVersion, url)
			} else {
				fmt.Printf("    * %s/csound%s\n", bin.Platform, bin.CsoundVersion)
			}
		}
	}
	if len(p.Assets) > 0 {
		fmt.Println("Assets:")
		for _, asset := range p.Assets {
			fmt.Printf("    * identifier: %s\n", abbrev(asset.Identifier(), 70))
			fmt.Printf("      source: %s\n", asset.Source)
			fmt.Printf("      patterns: %s\n", strings.Join(asset.Patterns, ", "))
			fmt.Printf("      platform: %s\n", asset.Platform)
		}
	}
	fmt.Println()
	return nil
}

// wrap breaks s into lines of at most width characters at word
// boundaries.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
