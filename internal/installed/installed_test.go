package installed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/plugin"
)

func testManifest() *Manifest {
	return &Manifest{
		Name:             "klib",
		Author:           "someone",
		Email:            "someone@example.com",
		Version:          "1.14.0",
		Opcodes:          []string{"dict_get", "dict_set"},
		ShortDescription: "hashtables for csound",
		BuildPlatform:    "Ubuntu 22.04",
		Binary:           "libklib.so",
		Platform:         "linux-x86_64",
		AssetFiles:       []string{"wisdom.dat"},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "installed-manifests"))
	m := testManifest()

	require.NoError(t, store.Save(m))
	assert.True(t, store.Exists("klib"))

	loaded, err := store.Load("klib")
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("nosuchplugin")
	assert.Error(t, err)
}

func TestStoreRemove(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(testManifest()))
	require.NoError(t, store.Remove("klib"))
	assert.False(t, store.Exists("klib"))

	// Removing an absent manifest is a no-op.
	assert.NoError(t, store.Remove("klib"))
}

func TestStoreFind(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(testManifest()))

	m, path := store.Find("klib")
	require.NotNil(t, m)
	assert.Equal(t, "1.14.0", m.Version)
	assert.Equal(t, store.Path("klib"), path)

	m, path = store.Find("nosuchplugin")
	assert.Nil(t, m)
	assert.Empty(t, path)
}

func TestStoreFindVersionedFileName(t *testing.T) {
	// Older versions saved manifests as "<name>@<version>.json".
	dir := t.TempDir()
	store := NewStore(dir)
	m := testManifest()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	legacy := filepath.Join(dir, "klib@1.14.0.json")
	require.NoError(t, os.WriteFile(legacy, data, 0o644))

	found, path := store.Find("klib")
	require.NotNil(t, found)
	assert.Equal(t, "1.14.0", found.Version)
	assert.Equal(t, legacy, path)
}

func TestStoreListSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(testManifest()))

	other := testManifest()
	other.Name = "vec"
	require.NoError(t, store.Save(other))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	manifests, err := store.List()
	require.NoError(t, err)
	require.Len(t, manifests, 2)

	names := []string{manifests[0].Name, manifests[1].Name}
	assert.ElementsMatch(t, []string{"klib", "vec"}, names)
}

func TestNewManifest(t *testing.T) {
	p := &plugin.Plugin{
		Name:             "klib",
		Version:          "1.14.0",
		Author:           "someone",
		Email:            "someone@example.com",
		Opcodes:          []string{"dict_get"},
		ShortDescription: "hashtables",
	}
	binary := &plugin.Binary{
		URL:           "https://example.com/klib.zip",
		ExtractPath:   "klib/libklib.so",
		BuildPlatform: "Ubuntu 22.04",
	}
	target := platform.Platform{OS: "linux", Arch: "x86_64"}

	m := NewManifest(p, binary, target, nil)
	assert.Equal(t, "libklib.so", m.Binary)
	assert.Equal(t, "linux-x86_64", m.Platform)
	assert.Equal(t, "Ubuntu 22.04", m.BuildPlatform)
	assert.NotNil(t, m.AssetFiles)
	assert.Empty(t, m.AssetFiles)
}

func TestParsePluginKey(t *testing.T) {
	tests := []struct {
		key         string
		wantName    string
		wantVersion string
	}{
		{"klib", "klib", "0.0.0"},
		{"klib@1.14.0", "klib", "1.14.0"},
		{"klib@", "klib", ""},
	}
	for _, tt := range tests {
		name, version := ParsePluginKey(tt.key)
		if name != tt.wantName || version != tt.wantVersion {
			t.Errorf("ParsePluginKey(%q) = (%q, %q), want (%q, %q)",
				tt.key, name, version, tt.wantName, tt.wantVersion)
		}
	}
}
