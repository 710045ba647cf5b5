// Package plugin defines the risset plugin model and the decoding of
// risset.json manifests: binaries per platform and csound version range,
// auxiliary assets, and documentation layout.
package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/versioning"
)

// DefaultCsoundVersionRange is assumed for binaries which do not declare
// a csound_version.
const DefaultCsoundVersionRange = ">=6.18<7.0"

// Binary describes one installable artifact of a plugin: a shared library
// built for one platform and one csound version range. The URL may point
// to the library itself or to a .zip containing it, in which case
// ExtractPath locates the library inside the archive.
type Binary struct {
	// Platform this binary was built for, always normalized.
	Platform platform.Platform `json:"platform"`

	// URL of the artifact, after variable substitution.
	URL string `json:"url"`

	// CsoundVersion is the declared version range expression.
	CsoundVersion string `json:"csound_version"`

	// VersionRange is CsoundVersion parsed, done eagerly at decode time.
	VersionRange versioning.Range `json:"-"`

	// ExtractPath locates the library inside an archive URL.
	ExtractPath string `json:"extractpath,omitempty"`

	// BuildPlatform describes where the binary was built, informative only.
	BuildPlatform string `json:"build_platform,omitempty"`

	// PostInstall is a script to run after installation.
	PostInstall string `json:"post_install,omitempty"`
}

// UnmarshalJSON restores the parsed version range after decoding, so a
// Binary read back from the catalogue snapshot matches what the
// manifest decoder produces.
func (b *Binary) UnmarshalJSON(data []byte) error {
	type alias Binary
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = Binary(a)
	if b.CsoundVersion != "" {
		r, err := versioning.ParseRange(b.CsoundVersion)
		if err != nil {
			return err
		}
		b.VersionRange = r
	}
	return nil
}

// Filename returns the name of the shared library this binary installs.
func (b *Binary) Filename() string {
	if strings.HasSuffix(b.URL, ".zip") && b.ExtractPath != "" {
		return path.Base(b.ExtractPath)
	}
	return path.Base(b.URL)
}

// Matches reports whether this binary applies to the given platform and
// csound version.
func (b *Binary) Matches(target platform.Platform, version versioning.ID) bool {
	if b.Platform != target {
		return false
	}
	ok, err := b.VersionRange.Contains(version)
	if err != nil {
		slog.Debug("cannot match binary against version",
			logfields.Version(version.String()), logfields.Error(err))
		return false
	}
	return ok
}

// Asset describes files distributed alongside a plugin, typically data
// the opcodes need at runtime.
type Asset struct {
	// Source is a git repository URL, a downloadable file URL, or a
	// local folder.
	Source string `json:"source"`

	// Patterns are paths or glob patterns selecting files within the
	// source. Empty when the source is the file itself.
	Patterns []string `json:"patterns,omitempty"`

	// Platform is "all" or one exact platform id.
	Platform string `json:"platform,omitempty"`

	// Name of the asset, optional.
	Name string `json:"name,omitempty"`
}

// Identifier returns a stable display name for the asset.
func (a *Asset) Identifier() string {
	if a.Name != "" {
		return a.Name
	}
	if len(a.Patterns) > 0 {
		return fmt.Sprintf("%s::%s", a.Source, strings.Join(a.Patterns, ","))
	}
	return a.Source
}

// MatchesPlatform reports whether the asset applies to the given platform.
func (a *Asset) MatchesPlatform(target platform.Platform) bool {
	return a.Platform == "all" || a.Platform == target.String()
}

// Plugin is one entry of the catalogue: a set of opcodes with binaries
// for a number of platforms, plus assets and documentation.
// Identity is (Name, Version).
type Plugin struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description,omitempty"`
	Author           string `json:"author"`
	Email            string `json:"email"`

	// Opcodes defined by this plugin, sorted.
	Opcodes []string `json:"opcodes"`

	// Binaries in declaration order.
	Binaries []*Binary `json:"binaries"`

	Assets []*Asset `json:"assets,omitempty"`

	// Doc is the declared documentation folder, relative to the
	// manifest. Empty means "doc" beside the manifest.
	Doc string `json:"doc,omitempty"`

	// RepositoryURL is the git repository defining this plugin.
	RepositoryURL string `json:"url"`

	// RepositoryPath is the local clone of RepositoryURL.
	RepositoryPath string `json:"cloned_path,omitempty"`

	// ManifestRelPath is the manifest folder relative to the repository
	// root.
	ManifestRelPath string `json:"manifest_relative_path,omitempty"`

	// ManifestPath is the absolute path of the risset.json file.
	ManifestPath string `json:"manifest_path,omitempty"`
}

// VersionTriple parses the plugin version, zero on failure.
func (p *Plugin) VersionTriple() versioning.Triple {
	triple, err := versioning.ParseTriple(p.Version)
	if err != nil {
		return versioning.Triple{}
	}
	return triple
}

// ManifestDir is the folder holding the manifest file.
func (p *Plugin) ManifestDir() string {
	if p.ManifestPath != "" {
		return filepath.Dir(p.ManifestPath)
	}
	return filepath.Join(p.RepositoryPath, p.ManifestRelPath)
}

// ResolvePath resolves a path relative to the manifest folder.
func (p *Plugin) ResolvePath(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(p.ManifestDir(), rel)
}

// DocFolder resolves the documentation folder of this plugin.
func (p *Plugin) DocFolder() (string, error) {
	folder := p.Doc
	if folder == "" {
		folder = "doc"
	}
	resolved := p.ResolvePath(folder)
	if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
		return "", errors.Newf(errors.KindIO, "no doc folder found for plugin %s (declared as %s)", p.Name, resolved)
	}
	return resolved, nil
}

// Manpage returns the path of the markdown man page for the given opcode,
// or false when the plugin does not document it.
func (p *Plugin) Manpage(opcode string) (string, bool) {
	folder, err := p.DocFolder()
	if err != nil {
		return "", false
	}
	manpage := filepath.Join(folder, opcode+".md")
	if _, err := os.Stat(manpage); err != nil {
		return "", false
	}
	return manpage, true
}

// FindBinary returns the first declared binary matching the platform and
// csound version, or nil when none applies.
func (p *Plugin) FindBinary(target platform.Platform, version versioning.ID) *Binary {
	var matches []*Binary
	for _, b := range p.Binaries {
		if b.Matches(target, version) {
			matches = append(matches, b)
		}
	}
	if len(matches) == 0 {
		slog.Debug("no binary matches",
			logfields.Plugin(p.Name),
			logfields.Platform(target.String()),
			logfields.Version(version.String()),
			slog.Any("available", p.AvailableBinaries()))
		return nil
	}
	if len(matches) > 1 {
		slog.Debug("multiple binaries match, selecting the first declared",
			logfields.Plugin(p.Name), logfields.Platform(target.String()))
	}
	return matches[0]
}

// AvailableBinaries lists the declared binaries as
// "<platform>/csound<version range>", used in error messages when no
// binary matches.
func (p *Plugin) AvailableBinaries() []string {
	available := make([]string, len(p.Binaries))
	for i, b := range p.Binaries {
		available[i] = fmt.Sprintf("%s/csound%s", b.Platform, b.CsoundVersion)
	}
	return available
}

// DecodeOptions locates a manifest within its repository and controls
// decoding strictness.
type DecodeOptions struct {
	// RepositoryURL is the git repository the manifest comes from.
	RepositoryURL string

	// RepositoryPath is the local clone of the repository.
	RepositoryPath string

	// ManifestRelPath is the manifest folder relative to the repository
	// root.
	ManifestRelPath string

	// ManifestPath is the absolute path of the manifest file.
	ManifestPath string

	// Strict turns recoverable per-entry decode problems (a malformed
	// binary or asset, normally logged and skipped) into errors.
	Strict bool
}

// ReadFile reads and decodes a risset.json manifest.
func ReadFile(manifestPath string, opts DecodeOptions) (*Plugin, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "could not read manifest %s", manifestPath)
	}
	opts.ManifestPath = manifestPath
	return Decode(data, opts)
}

// Decode parses a risset.json manifest. Required keys are name, version,
// short_description, author, email, opcodes and binaries; a missing key
// is a schema error naming it. Malformed binaries and assets are logged
// and skipped unless opts.Strict; a plugin with no valid binaries is a
// schema error.
func Decode(data []byte, opts DecodeOptions) (*Plugin, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.SchemaErrorf("invalid JSON in plugin manifest: %v", err)
	}

	name, err := requireString(raw, "name")
	if err != nil {
		return nil, err
	}
	rawVersion, err := requireString(raw, "version")
	if err != nil {
		return nil, err
	}
	shortDescription, err := requireString(raw, "short_description")
	if err != nil {
		return nil, err
	}
	author, err := requireString(raw, "author")
	if err != nil {
		return nil, err
	}
	email, err := requireString(raw, "email")
	if err != nil {
		return nil, err
	}
	opcodes, err := requireStringList(raw, "opcodes")
	if err != nil {
		return nil, err
	}
	sort.Strings(opcodes)

	substitutions := scalarValues(raw)

	binaryDefs, ok := raw["binaries"]
	if !ok || binaryDefs == nil {
		return nil, errors.SchemaError("Plugin has no binaries key")
	}
	binaryList, ok := binaryDefs.([]any)
	if !ok {
		return nil, errors.SchemaErrorf("parsing 'binaries', expected a list of binary definitions, got %T", binaryDefs)
	}
	var binaries []*Binary
	for _, def := range binaryList {
		m, ok := def.(map[string]any)
		if !ok {
			return nil, errors.SchemaErrorf("parsing 'binaries', expected a binary definition, got %T", def)
		}
		binary, err := parseBinary(m, substitutions)
		if err != nil {
			if opts.Strict {
				return nil, errors.Wrapf(err, errors.KindParse, "failed to parse binary definition for plugin %s", name)
			}
			slog.Error("failed to parse binary definition, skipping",
				logfields.Plugin(name), logfields.Error(err))
			continue
		}
		binaries = append(binaries, binary)
	}
	if len(binaries) == 0 {
		return nil, errors.SchemaError("No valid binaries defined")
	}

	plugin := &Plugin{
		Name:             name,
		Version:          versioning.Normalize(rawVersion, "0.0.0"),
		ShortDescription: shortDescription,
		LongDescription:  getString(raw, "long_description"),
		Author:           author,
		Email:            email,
		Opcodes:          opcodes,
		Binaries:         binaries,
		Doc:              getString(raw, "doc"),
		RepositoryURL:    opts.RepositoryURL,
		RepositoryPath:   opts.RepositoryPath,
		ManifestRelPath:  opts.ManifestRelPath,
		ManifestPath:     opts.ManifestPath,
	}

	defaultSource := plugin.ManifestDir()
	if defaultSource != "" {
		if _, err := os.Stat(defaultSource); err != nil {
			slog.Warn("local manifest folder not found",
				logfields.Plugin(name), logfields.Path(defaultSource))
		}
	}

	if assetDefs, ok := raw["assets"]; ok && assetDefs != nil {
		assetList, ok := assetDefs.([]any)
		if !ok {
			return nil, errors.SchemaErrorf("assets should hold a list of asset definitions, got %T", assetDefs)
		}
		for _, def := range assetList {
			m, ok := def.(map[string]any)
			if !ok {
				return nil, errors.SchemaErrorf("parsing 'assets', expected an asset definition, got %T", def)
			}
			asset, err := parseAsset(m, defaultSource)
			if err != nil {
				if opts.Strict {
					return nil, errors.Wrapf(err, errors.KindParse, "failed to parse asset definition for plugin %s", name)
				}
				slog.Error("failed to parse asset definition, skipping",
					logfields.Plugin(name), logfields.Error(err))
				continue
			}
			plugin.Assets = append(plugin.Assets, asset)
		}
	}

	return plugin, nil
}

// parseBinary decodes one entry of the binaries list. The platform is
// normalized and the version range parsed up front, so a plugin that
// decodes without errors always resolves without surprises.
func parseBinary(def map[string]any, substitutions map[string]string) (*Binary, error) {
	rawPlatform := getString(def, "platform")
	if rawPlatform == "" {
		return nil, errors.ParseError("plugin binary should have a platform key")
	}
	normalized, ok := platform.Normalize(rawPlatform)
	if !ok {
		return nil, errors.ParseErrorf("platform %q not supported, possible platforms are %v",
			rawPlatform, platform.Supported())
	}

	url := getString(def, "url")
	if url == "" {
		return nil, errors.ParseErrorf("binary definition for %s should have an url", rawPlatform)
	}
	url, err := expandSubstitutions(url, substitutions)
	if err != nil {
		return nil, err
	}

	csoundVersion := getString(def, "csound_version")
	if csoundVersion == "" {
		slog.Error("no csound version found for binary, assuming default",
			logfields.Platform(rawPlatform), logfields.URL(url),
			logfields.Version(DefaultCsoundVersionRange))
		csoundVersion = DefaultCsoundVersionRange
	}
	versionRange, err := versioning.ParseRange(csoundVersion)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindParse, "invalid csound_version %q", csoundVersion)
	}

	buildPlatform := getString(def, "build_platform")
	if buildPlatform == "" {
		buildPlatform = "unknown"
	}

	return &Binary{
		Platform:      normalized,
		URL:           url,
		CsoundVersion: csoundVersion,
		VersionRange:  versionRange,
		ExtractPath:   getString(def, "extractpath"),
		BuildPlatform: buildPlatform,
		PostInstall:   getString(def, "post_install"),
	}, nil
}

// parseAsset decodes one entry of the assets list. The source defaults
// to the manifest's local folder when no url is given.
func parseAsset(def map[string]any, defaultSource string) (*Asset, error) {
	source := getString(def, "url")
	if source == "" {
		source = defaultSource
	}
	extractPath := getString(def, "extractpath")
	if extractPath == "" {
		extractPath = getString(def, "path")
	}
	if source == "" && extractPath == "" {
		return nil, errors.ParseError("asset definition should have an url or an extractpath key")
	}
	var patterns []string
	if extractPath != "" {
		patterns = strings.Split(extractPath, ";")
	}
	assetPlatform := getString(def, "platform")
	if assetPlatform == "" {
		assetPlatform = "all"
	}
	return &Asset{
		Source:   source,
		Patterns: patterns,
		Platform: assetPlatform,
		Name:     getString(def, "name"),
	}, nil
}

// expandSubstitutions expands $var and ${var} references against the
// scalar values of the manifest. An undefined variable is an error.
func expandSubstitutions(s string, substitutions map[string]string) (string, error) {
	var missing []string
	expanded := os.Expand(s, func(key string) string {
		value, ok := substitutions[key]
		if !ok {
			missing = append(missing, key)
			return ""
		}
		return value
	})
	if len(missing) > 0 {
		return "", errors.ParseErrorf("undefined variable(s) %s in %q", strings.Join(missing, ", "), s)
	}
	return expanded, nil
}

// scalarValues collects the string and numeric values of the manifest,
// keyed by their manifest key, for $var substitution in urls.
func scalarValues(raw map[string]any) map[string]string {
	values := make(map[string]string)
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			values[key] = v
		case float64:
			values[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return values
}

func requireString(raw map[string]any, key string) (string, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return "", errors.SchemaErrorf("Plugin has no %s key", key)
	}
	s, ok := value.(string)
	if !ok {
		return "", errors.SchemaErrorf("%s should be a string, got %T", key, value)
	}
	return s, nil
}

func requireStringList(raw map[string]any, key string) ([]string, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return nil, errors.SchemaErrorf("Plugin has no %s key", key)
	}
	list, ok := value.([]any)
	if !ok {
		return nil, errors.SchemaErrorf("%s should be a list of strings, got %T", key, value)
	}
	items := make([]string, 0, len(list))
	for _, el := range list {
		s, ok := el.(string)
		if !ok {
			return nil, errors.SchemaErrorf("%s should be a list of strings, got a %T element", key, el)
		}
		items = append(items, s)
	}
	return items, nil
}

func getString(raw map[string]any, key string) string {
	if value, ok := raw[key]; ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}
