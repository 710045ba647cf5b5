package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/csound-plugins/risset/internal/index"
	"github.com/csound-plugins/risset/internal/plugin"
)

func catalogueWith(names ...string) *index.MainIndex {
	plugins := make(map[string]*plugin.Plugin, len(names))
	for _, name := range names {
		plugins[name] = &plugin.Plugin{Name: name}
	}
	return &index.MainIndex{Plugins: plugins}
}

func pluginNames(plugins []*plugin.Plugin) []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

func TestMatchPluginsExactName(t *testing.T) {
	idx := catalogueWith("else", "beosc", "klib")

	matched := matchPlugins(idx, []string{"beosc"})
	assert.Equal(t, []string{"beosc"}, pluginNames(matched))
}

func TestMatchPluginsGlob(t *testing.T) {
	idx := catalogueWith("else", "beosc", "jsfx", "klib")

	matched := matchPlugins(idx, []string{"*s*"})
	assert.Equal(t, []string{"beosc", "else", "jsfx"}, pluginNames(matched))
}

func TestMatchPluginsIsCaseInsensitive(t *testing.T) {
	idx := catalogueWith("klib")

	matched := matchPlugins(idx, []string{"KLIB"})
	assert.Equal(t, []string{"klib"}, pluginNames(matched))
}

func TestMatchPluginsDeduplicatesAcrossPatterns(t *testing.T) {
	idx := catalogueWith("else", "beosc")

	matched := matchPlugins(idx, []string{"*", "beosc", "els?"})
	assert.Equal(t, []string{"beosc", "else"}, pluginNames(matched))
}

func TestMatchPluginsNoMatch(t *testing.T) {
	idx := catalogueWith("else")

	assert.Empty(t, matchPlugins(idx, []string{"nosuchplugin"}))
}

func TestMatchOpcodesKeepsDefinitionOrder(t *testing.T) {
	defined := []index.Opcode{
		{Name: "beadsynt", Plugin: "beosc"},
		{Name: "beosc", Plugin: "beosc"},
		{Name: "dict_get", Plugin: "klib"},
		{Name: "dict_set", Plugin: "klib"},
	}

	matched := matchOpcodes(defined, []string{"dict_*", "be*"})
	got := make([]string, len(matched))
	for i, opcode := range matched {
		got[i] = opcode.Name
	}
	assert.Equal(t, []string{"dict_get", "dict_set", "beadsynt", "beosc"}, got)
}

func TestMatchOpcodesDeduplicates(t *testing.T) {
	defined := []index.Opcode{{Name: "poly"}, {Name: "polyseq"}}

	matched := matchOpcodes(defined, []string{"poly*", "poly"})
	assert.Len(t, matched, 2)
}

func TestAbbrev(t *testing.T) {
	assert.Equal(t, "short", abbrev("short", 10))
	assert.Equal(t, "exactly10!", abbrev("exactly10!", 10))
	assert.Equal(t, "truncated…", abbrev("truncated here", 10))
}

func TestWrap(t *testing.T) {
	lines := wrap("a sequence of words that should be wrapped neatly", 16)
	assert.Equal(t, []string{"a sequence of", "words that", "should be", "wrapped neatly"}, lines)

	assert.Nil(t, wrap("", 10))
	assert.Equal(t, []string{"single"}, wrap("single", 3))
}
