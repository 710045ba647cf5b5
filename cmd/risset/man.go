package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"runtime"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/index"
	"github.com/csound-plugins/risset/internal/logfields"
)

type manCmd struct {
	HTML     bool     `help:"Open the generated html page instead of showing the markdown source."`
	Markdown bool     `help:"Show the markdown source even when --html is given."`
	Path     bool     `short:"p" help:"Print the man page path as opcode:path instead of showing it."`
	Simple   bool     `short:"s" help:"Print only the man page path."`
	External bool     `help:"Open the markdown page in the default external application."`
	Opcodes  []string `arg:"" optional:"" help:"Opcodes to look up. Glob patterns are supported. Without arguments all known opcodes are listed."`
}

func (c *manCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	defined := idx.DefinedOpcodes(a.ctx)
	if len(c.Opcodes) == 0 {
		for _, opcode := range defined {
			fmt.Println(opcode.Name)
		}
		return nil
	}
	selected := matchOpcodes(defined, c.Opcodes)
	if len(selected) == 0 {
		return errors.Newf(errors.KindInvalidArgument, "no opcodes matched %s", strings.Join(c.Opcodes, ", "))
	}
	useHTML := c.HTML && !c.Markdown
	for _, opcode := range selected {
		var page string
		if useHTML {
			page, err = idx.FindManpageHTML(opcode.Name)
		} else {
			page, err = idx.FindManpage(opcode.Name)
		}
		if err != nil {
			slog.Error("no man page for opcode", logfields.Opcode(opcode.Name), logfields.Error(err))
			continue
		}
		switch {
		case c.Path:
			fmt.Printf("%s:%s\n", opcode.Name, page)
		case c.Simple:
			fmt.Println(page)
		case useHTML || c.External:
			if err := openInDefaultApplication(page); err != nil {
				slog.Error("could not open the man page", logfields.Path(page), logfields.Error(err))
			}
		default:
			source, err := os.ReadFile(page)
			if err != nil {
				slog.Error("could not read the man page", logfields.Path(page), logfields.Error(err))
				continue
			}
			fmt.Println(string(source))
		}
	}
	return nil
}

// matchOpcodes expands glob patterns against the defined opcodes,
// keeping the catalogue order.
func matchOpcodes(defined []index.Opcode, patterns []string) []index.Opcode {
	var matched []index.Opcode
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		for _, opcode := range defined {
			ok, err := path.Match(pattern, strings.ToLower(opcode.Name))
			if err != nil {
				slog.Warn("malformed pattern", slog.String("pattern", pattern), logfields.Error(err))
				break
			}
			if ok && !seen[opcode.Name] {
				seen[opcode.Name] = true
				matched = append(matched, opcode)
			}
		}
	}
	return matched
}

// openInDefaultApplication opens the path with the application the
// desktop associates with it.
func openInDefaultApplication(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not open %s", path)
	}
	return nil
}

type listOpcodesCmd struct {
	Long bool `short:"l" help:"Long format: one line per opcode with plugin and abstract."`
}

func (c *listOpcodesCmd) Run(a *app) error {
	idx, err := a.index(false)
	if err != nil {
		return err
	}
	for _, opcode := range idx.DefinedOpcodes(a.ctx) {
		if !c.Long {
			fmt.Println(opcode.Name)
			continue
		}
		symbol := "-"
		if opcode.Installed {
			symbol = "*"
		}
		fmt.Printf("%s %-20s%-12s%s\n", symbol, opcode.Name, opcode.Plugin, abbrev(opcode.Abstract, 60))
	}
	return nil
}
