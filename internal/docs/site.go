package docs

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
)

// PluginDocs carries the documentation inputs of one plugin. It is
// plain data so the site builder stays independent of the catalogue.
type PluginDocs struct {
	Name             string
	ShortDescription string
	Opcodes          []string
	// DocFolder is the absolute path to the folder holding the plugin's
	// man pages, empty when the plugin ships no documentation.
	DocFolder string
	Installed bool
}

// Manpage returns the path of the markdown man page for opcode, if the
// plugin ships one.
func (p *PluginDocs) Manpage(opcode string) (string, bool) {
	if p.DocFolder == "" {
		return "", false
	}
	page := filepath.Join(p.DocFolder, opcode+".md")
	if _, err := os.Stat(page); err != nil {
		return "", false
	}
	return page, true
}

// GenerateOptions control how the documentation tree is assembled.
type GenerateOptions struct {
	// Dest is the root folder of the generated documentation. The
	// markdown sources go to Dest/docs and the rendered site, when
	// BuildHTML is set, to Dest/site.
	Dest      string
	BuildHTML bool
	// OnlyInstalled restricts the documentation to installed plugins.
	OnlyInstalled bool
	// Stylesheet is the css file copied into the docs. When empty a
	// builtin stylesheet is used instead.
	Stylesheet string
	// OpcodesXML, when set, is the path where an opcodes.xml summary of
	// all opcodes is written.
	OpcodesXML string
}

// Generate assembles the documentation for the given plugins: it
// gathers the man pages into a docs folder, writes an index page and
// optionally renders the whole tree to a static html site.
func Generate(plugins []PluginDocs, opts GenerateOptions) error {
	if opts.OnlyInstalled {
		kept := make([]PluginDocs, 0, len(plugins))
		for _, p := range plugins {
			if p.Installed {
				kept = append(kept, p)
			}
		}
		plugins = kept
	}
	docsDir := filepath.Join(opts.Dest, "docs")
	if err := compileDocs(docsDir, plugins, opts.Stylesheet); err != nil {
		return err
	}
	if opts.OpcodesXML != "" {
		xml := GenerateOpcodesXML(plugins)
		if err := os.WriteFile(opts.OpcodesXML, []byte(xml), 0o644); err != nil {
			return errors.Wrapf(err, errors.KindIO, "could not write %s", opts.OpcodesXML)
		}
	}
	if opts.BuildHTML {
		if err := RenderSite(docsDir, filepath.Join(opts.Dest, "site")); err != nil {
			return err
		}
	}
	return nil
}

// compileDocs gathers the man pages of all plugins into a flat docs
// folder: the pages go to dest/opcodes, plugin assets to
// dest/opcodes/assets and the generated index to dest/index.md. Any
// previous content of dest is discarded.
func compileDocs(dest string, plugins []PluginDocs, stylesheet string) error {
	if err := os.RemoveAll(dest); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not remove the existing doc folder %s", dest)
	}
	cssDir := filepath.Join(dest, "css")
	opcodesDir := filepath.Join(dest, "opcodes")
	for _, dir := range []string{dest, cssDir, opcodesDir, filepath.Join(opcodesDir, "assets")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.KindIO, "could not create %s", dir)
		}
	}
	if err := writeStylesheet(cssDir, stylesheet); err != nil {
		return err
	}
	for i := range plugins {
		p := &plugins[i]
		if p.DocFolder == "" {
			slog.Debug("no docs found for plugin", logfields.Plugin(p.Name))
			continue
		}
		pages, _ := filepath.Glob(filepath.Join(p.DocFolder, "*.md"))
		for _, page := range pages {
			if err := copyFile(page, filepath.Join(opcodesDir, filepath.Base(page))); err != nil {
				return err
			}
		}
		assets := filepath.Join(p.DocFolder, "assets")
		if info, err := os.Stat(assets); err == nil && info.IsDir() {
			slog.Debug("copying assets for plugin", logfields.Plugin(p.Name))
			if err := copyTree(assets, filepath.Join(opcodesDir, "assets")); err != nil {
				return err
			}
		}
	}
	index := GenerateIndex(plugins)
	if err := os.WriteFile(filepath.Join(dest, "index.md"), []byte(index), 0o644); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not write the documentation index")
	}
	return nil
}

// GenerateIndex renders the markdown index of the documentation: one
// section per plugin with a bullet per documented opcode, linking to
// the opcode's page.
func GenerateIndex(plugins []PluginDocs) string {
	sorted := make([]PluginDocs, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	lines := []string{"# Plugins\n"}
	for i := range sorted {
		p := &sorted[i]
		lines = append(lines, "## "+p.Name+"\n", p.ShortDescription+"\n")
		opcodes := make([]string, len(p.Opcodes))
		copy(opcodes, p.Opcodes)
		sort.Strings(opcodes)
		for _, opcode := range opcodes {
			page, ok := p.Manpage(opcode)
			if !ok {
				slog.Debug("opcode has no man page", logfields.Opcode(opcode), logfields.Plugin(p.Name))
				continue
			}
			man, err := ParseManpage(page, opcode)
			if err != nil || man.Abstract == "" {
				slog.Error("could not get an abstract for opcode", logfields.Opcode(opcode))
				continue
			}
			lines = append(lines, fmt.Sprintf("  * [%s](opcodes/%s.md): %s", opcode, opcode, man.Abstract))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

const stylesheetName = "syntax-highlighting.css"

// defaultStylesheet keeps the rendered pages readable when the data
// repository does not provide its own stylesheet.
const defaultStylesheet = `body {
  font-family: sans-serif;
  max-width: 50em;
  margin: 2em auto;
  padding: 0 1em;
  line-height: 1.5;
}
code, pre {
  font-family: monospace;
  background: #f4f4f4;
}
pre {
  padding: 0.8em;
  overflow-x: auto;
}
img { max-width: 100%; }
`

func writeStylesheet(cssDir, stylesheet string) error {
	dst := filepath.Join(cssDir, stylesheetName)
	if stylesheet != "" {
		return copyFile(stylesheet, dst)
	}
	if err := os.WriteFile(dst, []byte(defaultStylesheet), 0o644); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not write %s", dst)
	}
	return nil
}

// RenderSite renders the markdown tree under docsDir into a static
// html site at siteDir. The folder layout is preserved: markdown pages
// become html pages at the same relative path, everything else is
// copied verbatim. Any previous content of siteDir is discarded.
func RenderSite(docsDir, siteDir string) error {
	if err := os.RemoveAll(siteDir); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not remove the existing site folder %s", siteDir)
	}
	return filepath.WalkDir(docsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, errors.KindIO, "could not walk %s", p)
		}
		rel, err := filepath.Rel(docsDir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := os.MkdirAll(filepath.Join(siteDir, rel), 0o755); err != nil {
				return errors.Wrapf(err, errors.KindIO, "could not create %s", filepath.Join(siteDir, rel))
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".md") {
			out := strings.TrimSuffix(rel, filepath.Ext(rel)) + ".html"
			return renderPage(p, filepath.Join(siteDir, out), rel)
		}
		return copyFile(p, filepath.Join(siteDir, rel))
	})
}

// renderPage renders one markdown page to a standalone html page. rel
// is the path of the page relative to the docs root, used to link the
// stylesheet.
func renderPage(src, dst, rel string) error {
	source, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not read %s", src)
	}
	body, err := renderMarkdown(source)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "could not render %s", src)
	}
	page := fmt.Sprintf(pageTemplate, html.EscapeString(pageTitle(source, src)), cssHref(rel), body)
	if err := os.WriteFile(dst, []byte(page), 0o644); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not write %s", dst)
	}
	return nil
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<link rel="stylesheet" href="%s">
</head>
<body>
%s</body>
</html>
`

// renderMarkdown converts a man page to html. Links between man pages
// are rewritten to point at the rendered pages instead of the markdown
// sources.
func renderMarkdown(source []byte) ([]byte, error) {
	md := goldmark.New(goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	root := md.Parser().Parse(text.NewReader(source))
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			node.Destination = []byte(rewriteDocLink(string(node.Destination)))
		case *gmast.Image:
			node.Destination = []byte(rewriteDocLink(string(node.Destination)))
		}
		return gmast.WalkContinue, nil
	})
	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, source, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rewriteDocLink maps a relative link to a markdown page onto the html
// page it renders to. External links and anchors are left untouched.
func rewriteDocLink(dest string) string {
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return dest
	}
	base, frag, hasFrag := strings.Cut(dest, "#")
	if !strings.HasSuffix(base, ".md") {
		return dest
	}
	base = strings.TrimSuffix(base, ".md") + ".html"
	if hasFrag {
		return base + "#" + frag
	}
	return base
}

// pageTitle is the first heading of the page, falling back to the file
// name.
func pageTitle(source []byte, path string) string {
	for _, line := range strings.Split(string(source), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func cssHref(rel string) string {
	depth := strings.Count(filepath.ToSlash(rel), "/")
	return strings.Repeat("../", depth) + "css/" + stylesheetName
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not open %s", src)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create %s", filepath.Dir(dst))
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create %s", dst)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not copy %s to %s", src, dst)
	}
	return nil
}

// copyTree copies the directory src into dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		return copyFile(p, filepath.Join(dst, rel))
	})
}
