// Package config builds the settings and state-directory layout risset
// works against. A Config is constructed once at startup and passed
// explicitly to every component; nothing in the module reads global state
// after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultIndexURL is the git repository holding the main plugin index.
	DefaultIndexURL = "https://github.com/csound-plugins/risset-data"

	// DefaultSnapshotTTL is how long the catalogue snapshot stays fresh
	// before a rebuild from the cloned index is forced.
	DefaultSnapshotTTL = 240 * time.Hour

	// FileName is the optional configuration file inside the data directory.
	FileName = "risset.yaml"
)

// Config represents risset's configuration.
type Config struct {
	// DataDir is the root of risset's state directory (clones, assets,
	// installed manifests, snapshot, journal).
	DataDir string `yaml:"data_dir,omitempty"`

	// IndexURL is the git repository of the main plugin index.
	IndexURL string `yaml:"index_url,omitempty"`

	// CsoundBinary overrides the csound executable to probe. Empty means
	// "csound" resolved through $PATH.
	CsoundBinary string `yaml:"csound_binary,omitempty"`

	// UserPluginsDir overrides the directory plugins are installed into.
	// Empty means the csound default for the detected major version.
	UserPluginsDir string `yaml:"user_plugins_dir,omitempty"`

	// SnapshotTTLHours is the catalogue snapshot freshness window.
	SnapshotTTLHours int `yaml:"snapshot_ttl_hours,omitempty"`
}

// Load builds the configuration: platform defaults, then the optional
// risset.yaml in the data directory, then .env, then environment
// variables (RISSET_DATA_DIR, RISSET_INDEX_URL, RISSET_CSOUND_BIN,
// CS_USER_PLUGINDIR).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		DataDir:  defaultDataDir(),
		IndexURL: DefaultIndexURL,
	}
	if dir := os.Getenv("RISSET_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	configPath := filepath.Join(cfg.DataDir, FileName)
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand environment variables in the YAML content.
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	// Environment variables have priority over the file.
	if dir := os.Getenv("RISSET_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if url := os.Getenv("RISSET_INDEX_URL"); url != "" {
		cfg.IndexURL = url
	}
	if bin := os.Getenv("RISSET_CSOUND_BIN"); bin != "" {
		cfg.CsoundBinary = bin
	}
	if dir := os.Getenv("CS_USER_PLUGINDIR"); dir != "" {
		cfg.UserPluginsDir = dir
	}

	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("invalid data directory %q: %w", cfg.DataDir, err)
	}
	cfg.DataDir = abs
	return cfg, nil
}

// defaultDataDir returns the per-OS application data directory for risset.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "risset")
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			local = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(local, "risset")
	default:
		return filepath.Join(home, ".local", "share", "risset")
	}
}

// DataRepoDir is the local clone of the main index repository.
func (c *Config) DataRepoDir() string {
	return filepath.Join(c.DataDir, "risset-data")
}

// IndexFilePath is the main index file inside the cloned index repository.
func (c *Config) IndexFilePath() string {
	return filepath.Join(c.DataRepoDir(), "rissetindex.json")
}

// ClonesDir holds clones of plugin and asset repositories.
func (c *Config) ClonesDir() string {
	return filepath.Join(c.DataDir, "clones")
}

// AssetsDir is the root of per-plugin installed asset folders.
func (c *Config) AssetsDir() string {
	return filepath.Join(c.DataDir, "assets")
}

// PluginAssetsDir is the asset folder of one plugin.
func (c *Config) PluginAssetsDir(plugin string) string {
	return filepath.Join(c.AssetsDir(), plugin)
}

// InstalledManifestsDir holds one JSON manifest per installed plugin.
func (c *Config) InstalledManifestsDir() string {
	return filepath.Join(c.DataDir, "installed-manifests")
}

// ManDir is the output directory of generated documentation.
func (c *Config) ManDir() string {
	return filepath.Join(c.DataDir, "man")
}

// SnapshotPath is the catalogue snapshot file.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "mainindex.json")
}

// JournalPath is the install-history database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// OpcodesXMLPath is the generated opcodes.xml consumed by frontends.
func (c *Config) OpcodesXMLPath() string {
	return filepath.Join(c.DataDir, "opcodes.xml")
}

// SnapshotTTL returns the configured snapshot freshness window.
func (c *Config) SnapshotTTL() time.Duration {
	if c.SnapshotTTLHours > 0 {
		return time.Duration(c.SnapshotTTLHours) * time.Hour
	}
	return DefaultSnapshotTTL
}

// EnsureDirs creates the state directory tree.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.DataDir,
		c.ClonesDir(),
		c.AssetsDir(),
		c.InstalledManifestsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
