package index

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/csound-plugins/risset/internal/errors"
)

// indexFile is the decoded shape of rissetindex.json.
type indexFile struct {
	Version string                `json:"version"`
	Plugins map[string]indexEntry `json:"plugins"`
}

type indexEntry struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

func (f *indexFile) decode(data []byte) error {
	return json.Unmarshal(data, f)
}

// Source is one entry of the main index: a plugin name bound to the git
// repository defining it.
type Source struct {
	// Name of the plugin.
	Name string `json:"name"`

	// URL of the git repository holding the plugin definition.
	URL string `json:"url"`

	// Path locates the manifest within the repository: a folder holding
	// risset.json or the manifest file itself. Empty means the repository
	// root.
	Path string `json:"path,omitempty"`
}

// ManifestPath resolves the risset.json manifest of this source within
// its local clone. Path may name the manifest file directly or the
// folder containing it.
func (s *Source) ManifestPath(clonePath string) (string, error) {
	manifest := filepath.Join(clonePath, s.Path)
	if info, err := os.Stat(manifest); err == nil && !info.IsDir() {
		if filepath.Ext(manifest) != ".json" {
			return "", errors.SchemaErrorf(
				"the path for plugin %s should point to a .json manifest or its folder, got %s",
				s.Name, s.Path)
		}
		return manifest, nil
	}
	manifest = filepath.Join(manifest, "risset.json")
	if _, err := os.Stat(manifest); err != nil {
		return "", errors.Newf(errors.KindIO,
			"for plugin %s (%s, cloned at %s) the manifest was not found at the expected path: %s",
			s.Name, s.URL, clonePath, manifest)
	}
	return manifest, nil
}
