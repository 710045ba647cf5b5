package docs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dictGetPage = `# dict_get

## Abstract

Gets a value from a hashtable

## Syntax

    kvalue dict_get idict, kkey

## Example

![diagram](assets/diagram.svg)
`

const dictSetPage = `# dict_set

## Abstract

Sets a value in a hashtable

## Syntax

    dict_set idict, kkey, kvalue

## See also

[dict_get](dict_get.md)
`

const beoscPage = `# beosc

## Abstract

Band-enhanced oscillator

## Syntax

    aout beosc kfreq, kbw
`

func writeManpage(t *testing.T, dir, opcode, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, opcode+".md"), []byte(text), 0o644))
}

// testPlugins builds doc folders for two documented plugins plus one
// without any documentation.
func testPlugins(t *testing.T) []PluginDocs {
	t.Helper()
	klibDocs := t.TempDir()
	writeManpage(t, klibDocs, "dict_get", dictGetPage)
	writeManpage(t, klibDocs, "dict_set", dictSetPage)
	require.NoError(t, os.MkdirAll(filepath.Join(klibDocs, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(klibDocs, "assets", "diagram.svg"), []byte("<svg></svg>"), 0o644))

	beoscDocs := t.TempDir()
	writeManpage(t, beoscDocs, "beosc", beoscPage)

	return []PluginDocs{
		{Name: "beosc", ShortDescription: "Band-enhanced oscillator opcodes", Opcodes: []string{"beosc"}, DocFolder: beoscDocs},
		{Name: "klib", ShortDescription: "Hashtable opcodes", Opcodes: []string{"dict_set", "dict_get"}, DocFolder: klibDocs, Installed: true},
		{Name: "mystery", ShortDescription: "Undocumented opcodes", Opcodes: []string{"awesome"}, Installed: true},
	}
}

func TestGenerateIndex(t *testing.T) {
	got := GenerateIndex(testPlugins(t))
	want := `# Plugins

## beosc

Band-enhanced oscillator opcodes

  * [beosc](opcodes/beosc.md): Band-enhanced oscillator

## klib

Hashtable opcodes

  * [dict_get](opcodes/dict_get.md): Gets a value from a hashtable
  * [dict_set](opcodes/dict_set.md): Sets a value in a hashtable

## mystery

Undocumented opcodes

`
	assert.Equal(t, want, got)
}

func TestGenerateBuildsDocsAndSite(t *testing.T) {
	dest := t.TempDir()
	err := Generate(testPlugins(t), GenerateOptions{Dest: dest, BuildHTML: true})
	require.NoError(t, err)

	docsDir := filepath.Join(dest, "docs")
	assert.FileExists(t, filepath.Join(docsDir, "index.md"))
	assert.FileExists(t, filepath.Join(docsDir, "opcodes", "dict_get.md"))
	assert.FileExists(t, filepath.Join(docsDir, "opcodes", "dict_set.md"))
	assert.FileExists(t, filepath.Join(docsDir, "opcodes", "beosc.md"))
	assert.FileExists(t, filepath.Join(docsDir, "opcodes", "assets", "diagram.svg"))
	assert.FileExists(t, filepath.Join(docsDir, "css", "syntax-highlighting.css"))

	siteDir := filepath.Join(dest, "site")
	assert.FileExists(t, filepath.Join(siteDir, "index.html"))
	data, err := os.ReadFile(filepath.Join(siteDir, "opcodes", "dict_set.html"))
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<title>dict_set</title>")
	assert.Contains(t, page, `href="dict_get.html"`)
	assert.Contains(t, page, "../css/syntax-highlighting.css")

	data, err = os.ReadFile(filepath.Join(siteDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `href="opcodes/dict_get.html"`)

	broken, err := CheckLinks(siteDir)
	require.NoError(t, err)
	assert.Empty(t, broken)
}

func TestGenerateOnlyInstalled(t *testing.T) {
	dest := t.TempDir()
	err := Generate(testPlugins(t), GenerateOptions{Dest: dest, OnlyInstalled: true})
	require.NoError(t, err)

	docsDir := filepath.Join(dest, "docs")
	assert.FileExists(t, filepath.Join(docsDir, "opcodes", "dict_get.md"))
	assert.NoFileExists(t, filepath.Join(docsDir, "opcodes", "beosc.md"))
	index, err := os.ReadFile(filepath.Join(docsDir, "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "## klib")
	assert.NotContains(t, string(index), "## beosc")
}

func TestGenerateCustomStylesheet(t *testing.T) {
	css := filepath.Join(t.TempDir(), "custom.css")
	require.NoError(t, os.WriteFile(css, []byte("body { color: red }"), 0o644))

	dest := t.TempDir()
	err := Generate(testPlugins(t), GenerateOptions{Dest: dest, Stylesheet: css})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dest, "docs", "css", "syntax-highlighting.css"))
	require.NoError(t, err)
	assert.Equal(t, "body { color: red }", string(data))
}

func TestGenerateWritesOpcodesXML(t *testing.T) {
	dest := t.TempDir()
	xmlPath := filepath.Join(dest, "opcodes.xml")
	err := Generate(testPlugins(t), GenerateOptions{Dest: dest, OpcodesXML: xmlPath})
	require.NoError(t, err)

	data, err := os.ReadFile(xmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<category name="External Plugin:klib">`)
}

func TestGenerateOpcodesXML(t *testing.T) {
	xml := GenerateOpcodesXML(testPlugins(t))
	assert.Contains(t, xml, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, xml, `<category name="External Plugin:klib">`)
	assert.Contains(t, xml, `<opcode name="dict_get">`)
	assert.Contains(t, xml, "<desc>Gets a value from a hashtable</desc>")
	assert.Contains(t, xml, "<synopsis>kvalue <opcodename>dict_get</opcodename> idict, kkey</synopsis>")
	assert.Contains(t, xml, `<category name="External Plugin:mystery">`)
	assert.NotContains(t, xml, "awesome")
	assert.Equal(t, strings.Count(xml, "<opcode name="), strings.Count(xml, "</opcode>"))
}

func TestGenerateOpcodesXMLSkipsOpcodesWithoutSyntax(t *testing.T) {
	folder := t.TempDir()
	writeManpage(t, folder, "cmp", `# cmp

## Abstract

Compares two signals
`)
	xml := GenerateOpcodesXML([]PluginDocs{{Name: "else", Opcodes: []string{"cmp"}, DocFolder: folder}})
	assert.NotContains(t, xml, "<opcode name=")
	assert.NotContains(t, xml, "<desc>")
	assert.Contains(t, xml, `<category name="External Plugin:else">`)
}

func TestGenerateOpcodesXMLEscapes(t *testing.T) {
	folder := t.TempDir()
	writeManpage(t, folder, "cmp", `# cmp

## Abstract

Compares a < b

## Syntax

    aout cmp a1, "<", a2
`)
	xml := GenerateOpcodesXML([]PluginDocs{{Name: "else", Opcodes: []string{"cmp"}, DocFolder: folder}})
	assert.Contains(t, xml, "<desc>Compares a &lt; b</desc>")
	assert.Contains(t, xml, `aout <opcodename>cmp</opcodename> a1, &quot;&lt;&quot;, a2`)
}

func TestRewriteDocLink(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"dict_get.md", "dict_get.html"},
		{"dict_get.md#syntax", "dict_get.html#syntax"},
		{"opcodes/dict_get.md", "opcodes/dict_get.html"},
		{"assets/diagram.svg", "assets/diagram.svg"},
		{"https://example.com/page.md", "https://example.com/page.md"},
		{"#syntax", "#syntax"},
		{"mailto:someone@example.com", "mailto:someone@example.com"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rewriteDocLink(tc.in), "link %s", tc.in)
	}
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "dict_get", pageTitle([]byte(dictGetPage), "dict_get.md"))
	assert.Equal(t, "intro", pageTitle([]byte("plain text, no heading"), "/docs/intro.md"))
}
