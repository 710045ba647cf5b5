// Package installed persists installation manifests: one JSON file per
// installed plugin, recording which binary and assets were placed where.
// The manifest is written as the last step of a successful install and
// removed as the last step of an uninstall, so its presence marks a
// completed installation.
package installed

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/plugin"
)

// UnknownVersion marks a plugin whose binary is present without an
// installation manifest (installed manually or by an older tool).
const UnknownVersion = "Unknown"

// Manifest records one completed installation.
type Manifest struct {
	Name             string   `json:"name"`
	Author           string   `json:"author"`
	Email            string   `json:"email"`
	Version          string   `json:"version"`
	Opcodes          []string `json:"opcodes"`
	LongDescription  string   `json:"long_description"`
	ShortDescription string   `json:"short_description"`
	BuildPlatform    string   `json:"build_platform"`
	Binary           string   `json:"binary"`
	Platform         string   `json:"platform"`
	AssetFiles       []string `json:"assetfiles"`
}

// NewManifest builds the manifest for an installation of the given binary.
func NewManifest(p *plugin.Plugin, binary *plugin.Binary, target platform.Platform, assetFiles []string) *Manifest {
	if assetFiles == nil {
		assetFiles = []string{}
	}
	return &Manifest{
		Name:             p.Name,
		Author:           p.Author,
		Email:            p.Email,
		Version:          p.Version,
		Opcodes:          p.Opcodes,
		LongDescription:  p.LongDescription,
		ShortDescription: p.ShortDescription,
		BuildPlatform:    binary.BuildPlatform,
		Binary:           binary.Filename(),
		Platform:         target.String(),
		AssetFiles:       assetFiles,
	}
}

// Store reads and writes installation manifests in one directory.
type Store struct {
	dir string
}

// NewStore creates a store over the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the manifest file of the named plugin.
func (s *Store) Path(pluginName string) string {
	return filepath.Join(s.dir, pluginName+".json")
}

// Exists reports whether the named plugin has an installation manifest.
func (s *Store) Exists(pluginName string) bool {
	_, err := os.Stat(s.Path(pluginName))
	return err == nil
}

// Load reads the manifest of the named plugin.
func (s *Store) Load(pluginName string) (*Manifest, error) {
	return s.loadPath(s.Path(pluginName))
}

func (s *Store) loadPath(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "could not read installation manifest %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, errors.KindSchema, "invalid installation manifest %s", path)
	}
	return &m, nil
}

// Find locates the manifest of the named plugin and returns it with its
// path. Besides the plain "<name>.json" layout the older
// "<name>@<version>.json" file names are recognized. Returns nil when no
// manifest matches.
func (s *Store) Find(pluginName string) (*Manifest, string) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, ""
	}
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		name, _ := ParsePluginKey(stem)
		if name != pluginName {
			continue
		}
		m, err := s.loadPath(path)
		if err != nil {
			slog.Warn("skipping unreadable installation manifest",
				logfields.Path(path), logfields.Error(err))
			continue
		}
		return m, path
	}
	return nil, ""
}

// Save writes the manifest, creating the store directory if needed.
func (s *Store) Save(m *Manifest) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create %s", s.dir)
	}
	if m.AssetFiles == nil {
		m.AssetFiles = []string{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "could not serialize installation manifest for %s", m.Name)
	}
	path := s.Path(m.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not write installation manifest %s", path)
	}
	return nil
}

// Remove deletes the manifest of the named plugin. Removing a manifest
// that does not exist is not an error.
func (s *Store) Remove(pluginName string) error {
	err := os.Remove(s.Path(pluginName))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.KindIO, "could not remove installation manifest for %s", pluginName)
	}
	return nil
}

// List loads every manifest in the store. Unreadable manifests are
// logged and skipped.
func (s *Store) List() ([]*Manifest, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "could not list %s", s.dir)
	}
	manifests := make([]*Manifest, 0, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".json")
		m, err := s.Load(name)
		if err != nil {
			slog.Warn("skipping unreadable installation manifest",
				logfields.Path(path), logfields.Error(err))
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// ParsePluginKey splits a "name@version" reference. A bare name yields
// version "0.0.0".
func ParsePluginKey(key string) (name, version string) {
	if before, after, found := strings.Cut(key, "@"); found {
		return before, after
	}
	return key, "0.0.0"
}
