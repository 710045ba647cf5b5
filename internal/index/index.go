// Package index maintains risset's plugin catalogue: the cloned index
// repository, the per-plugin repositories it references, the decoded
// plugin definitions and the queries the commands are built on (installed
// state, defined opcodes, man pages).
package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/csound-plugins/risset/internal/config"
	"github.com/csound-plugins/risset/internal/csound"
	"github.com/csound-plugins/risset/internal/docs"
	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/git"
	"github.com/csound-plugins/risset/internal/installed"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/plugin"
	"github.com/csound-plugins/risset/internal/versioning"
)

// FallbackCsoundVersion is assumed when the csound executable cannot be
// queried.
const FallbackCsoundVersion versioning.ID = 6180

// Options controls how the catalogue is loaded.
type Options struct {
	// Update pulls the index repository and every plugin repository
	// before parsing, and refreshes the on-disk snapshot.
	Update bool

	// Strict turns per-plugin parse problems, normally logged and
	// skipped, into errors.
	Strict bool

	// Target overrides the platform plugins are resolved for. The zero
	// value means the running platform.
	Target platform.Platform

	// Host overrides the csound probe, mainly for tests. Nil means the
	// configured csound binary.
	Host *csound.Host
}

// MainIndex is the loaded catalogue.
type MainIndex struct {
	cfg    *config.Config
	host   *csound.Host
	target platform.Platform
	gitc   *git.Client
	store  *installed.Store
	strict bool

	csoundVersion versioning.ID
	majorVersion  int

	// Version of the index file.
	Version string

	// Sources by plugin name as declared in the index.
	Sources map[string]*Source

	// Plugins by lowercased name.
	Plugins map[string]*plugin.Plugin

	dlls    map[string]DllLocation
	opcodes []Opcode
}

// DllLocation is an installed plugin binary found on disk.
type DllLocation struct {
	// Path of the shared library.
	Path string

	// UserInstalled is true for binaries in the user plugins directory,
	// false for binaries owned by the csound installation.
	UserInstalled bool
}

// Opcode is one opcode of the catalogue together with its documentation.
type Opcode struct {
	// Name of the opcode.
	Name string

	// Plugin defining the opcode.
	Plugin string

	// Installed reports whether the defining plugin is installed.
	Installed bool

	// Abstract is the one-line description from the man page, "?" when
	// the opcode has no man page.
	Abstract string

	// Syntaxes are the usage lines from the man page.
	Syntaxes []string
}

// Load builds the catalogue: it probes the csound version, clones the
// index repository if absent and parses every plugin definition. Without
// opts.Update a fresh snapshot is used instead of re-parsing; with it,
// the index and every plugin repository are pulled first and the
// snapshot is rewritten.
func Load(ctx context.Context, cfg *config.Config, opts Options) (*MainIndex, error) {
	host := opts.Host
	if host == nil {
		host = csound.NewHost(cfg.CsoundBinary)
	}
	target := opts.Target
	if target.OS == "" {
		target = platform.Current()
	}

	version, err := host.Version(ctx)
	if err != nil {
		slog.Warn("could not query the csound version, assuming 6.18", logfields.Error(err))
		version = FallbackCsoundVersion
	}
	major, minor, _ := version.Split()
	if major != 6 && major != 7 {
		return nil, errors.Newf(errors.KindConfig, "csound version %d.%d not supported", major, minor)
	}

	idx := &MainIndex{
		cfg:           cfg,
		host:          host,
		target:        target,
		gitc:          git.NewClient(cfg.ClonesDir()),
		store:         installed.NewStore(cfg.InstalledManifestsDir()),
		strict:        opts.Strict,
		csoundVersion: version,
		majorVersion:  major,
		Sources:       make(map[string]*Source),
		Plugins:       make(map[string]*plugin.Plugin),
	}

	if !opts.Update && idx.loadSnapshot() {
		return idx, nil
	}

	repoExisted := true
	if _, err := os.Stat(cfg.DataRepoDir()); err != nil {
		repoExisted = false
		if err := git.Clone(ctx, cfg.IndexURL, cfg.DataRepoDir(), 1); err != nil {
			return nil, err
		}
	}
	if err := idx.parseAll(ctx, opts.Update && repoExisted, opts.Update); err != nil {
		return nil, err
	}
	if opts.Update {
		idx.writeSnapshot()
	}
	return idx, nil
}

// CsoundVersion returns the probed csound version, or the fallback when
// csound is not available.
func (idx *MainIndex) CsoundVersion() versioning.ID {
	return idx.csoundVersion
}

// MajorVersion returns the major csound version the catalogue targets.
func (idx *MainIndex) MajorVersion() int {
	return idx.majorVersion
}

// Target returns the platform plugins are resolved for.
func (idx *MainIndex) Target() platform.Platform {
	return idx.target
}

// Host returns the csound probe of the catalogue.
func (idx *MainIndex) Host() *csound.Host {
	return idx.host
}

// Git returns the client managing the plugin repository clones.
func (idx *MainIndex) Git() *git.Client {
	return idx.gitc
}

// ManifestStore returns the installation manifest store.
func (idx *MainIndex) ManifestStore() *installed.Store {
	return idx.store
}

// UserPluginsDir returns the directory plugins are installed into,
// honoring the configuration override.
func (idx *MainIndex) UserPluginsDir() string {
	if idx.cfg.UserPluginsDir != "" {
		return idx.cfg.UserPluginsDir
	}
	return csound.UserPluginsPath(idx.majorVersion)
}

// SystemPluginsDir returns the directory of the system plugin
// installation, or "" when none is detected.
func (idx *MainIndex) SystemPluginsDir() string {
	return csound.SystemPluginsPath(idx.majorVersion, idx.target)
}

// Plugin looks up a plugin by name, case-insensitive. Returns nil when
// the catalogue does not define it.
func (idx *MainIndex) Plugin(name string) *plugin.Plugin {
	return idx.Plugins[strings.ToLower(name)]
}

// PluginNames returns the defined plugin names, sorted.
func (idx *MainIndex) PluginNames() []string {
	names := make([]string, 0, len(idx.Plugins))
	for _, p := range idx.Plugins {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Sorted returns the plugins sorted by name.
func (idx *MainIndex) Sorted() []*plugin.Plugin {
	plugins := make([]*plugin.Plugin, 0, len(idx.Plugins))
	for _, p := range idx.Plugins {
		plugins = append(plugins, p)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name < plugins[j].Name })
	return plugins
}

// Invalidate drops the memoized installed state, forcing the next query
// to re-scan the plugin directories and re-probe csound.
func (idx *MainIndex) Invalidate() {
	idx.dlls = nil
	idx.opcodes = nil
	idx.host.Invalidate()
}

// Update pulls the index repository and every plugin repository,
// re-parses all plugin definitions and rewrites the snapshot.
func (idx *MainIndex) Update(ctx context.Context) error {
	if err := idx.parseAll(ctx, true, true); err != nil {
		return err
	}
	idx.writeSnapshot()
	return nil
}

// parseAll reads the index file and decodes every plugin definition it
// references, cloning the plugin repositories as needed. Parse problems
// in one plugin are logged and the plugin skipped, unless strict.
func (idx *MainIndex) parseAll(ctx context.Context, updateIndex, updatePlugins bool) error {
	start := time.Now()
	idx.Sources = make(map[string]*Source)
	idx.Plugins = make(map[string]*plugin.Plugin)
	idx.Invalidate()

	if updateIndex {
		if err := git.Update(ctx, idx.cfg.DataRepoDir()); err != nil {
			slog.Warn("could not update the index repository, using the local clone",
				logfields.Path(idx.cfg.DataRepoDir()), logfields.Error(err))
		}
	}

	indexPath := idx.cfg.IndexFilePath()
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "main index file not found, searched: %s", indexPath)
	}
	var parsed indexFile
	if err := parsed.decode(data); err != nil {
		return errors.Wrapf(err, errors.KindParse, "could not parse index file %s", indexPath)
	}
	idx.Version = parsed.Version

	names := make([]string, 0, len(parsed.Plugins))
	for name := range parsed.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	updated := make(map[string]bool)
	for _, name := range names {
		entry := parsed.Plugins[name]
		if entry.URL == "" {
			return errors.SchemaErrorf("error while parsing the risset index, plugin %s does not define a url", name)
		}
		if _, err := git.RepoName(entry.URL); err != nil {
			return errors.SchemaErrorf("url for plugin %s is not a git repository: %s", name, entry.URL)
		}
		clone, err := idx.gitc.Ensure(ctx, entry.URL)
		if err != nil {
			return err
		}
		if updatePlugins && !updated[clone] {
			if err := git.Update(ctx, clone); err != nil {
				slog.Warn("could not update plugin repository, using the local clone",
					logfields.Plugin(name), logfields.Path(clone), logfields.Error(err))
			}
			updated[clone] = true
		}
		idx.Sources[name] = &Source{Name: name, URL: entry.URL, Path: entry.Path}
	}

	for _, name := range names {
		src := idx.Sources[name]
		slog.Debug("parsing plugin definition", logfields.Plugin(name))
		p, err := idx.readDefinition(ctx, src)
		if err != nil {
			if idx.strict {
				return errors.Wrapf(err, errors.KindParse, "error while parsing plugin definition for %s", name)
			}
			slog.Error("error while parsing plugin definition, skipping",
				logfields.Plugin(name), logfields.Error(err))
			continue
		}
		idx.Plugins[strings.ToLower(name)] = p
	}
	slog.Debug("catalogue parsed", logfields.Count(len(idx.Plugins)),
		logfields.DurationMS(time.Since(start).Seconds()*1000))
	return nil
}

// readDefinition decodes the manifest of one source. When the manifest
// cannot be read the plugin repository is updated and the read retried
// once, since a stale clone is the usual cause.
func (idx *MainIndex) readDefinition(ctx context.Context, src *Source) (*plugin.Plugin, error) {
	clone, err := idx.gitc.LocalPath(src.URL)
	if err != nil {
		return nil, err
	}
	manifest, err := src.ManifestPath(clone)
	if err != nil {
		return nil, err
	}
	opts := plugin.DecodeOptions{
		RepositoryURL:   src.URL,
		RepositoryPath:  clone,
		ManifestRelPath: src.Path,
		Strict:          idx.strict,
	}
	p, err := plugin.ReadFile(manifest, opts)
	if err == nil {
		return p, nil
	}
	slog.Warn("could not read manifest, updating the repository and retrying",
		logfields.Plugin(src.Name), logfields.Path(manifest), logfields.Error(err))
	if err := git.Update(ctx, clone); err != nil {
		slog.Warn("could not update plugin repository",
			logfields.Plugin(src.Name), logfields.Error(err))
	}
	p, err = plugin.ReadFile(manifest, opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("manifest readable after update", logfields.Plugin(src.Name))
	return p, nil
}

// InstalledDlls scans the system and user plugin directories and returns
// the installed binaries by file name. A binary present in both
// directories resolves to the user one.
func (idx *MainIndex) InstalledDlls() map[string]DllLocation {
	if idx.dlls != nil {
		return idx.dlls
	}
	ext := csound.PluginExtensionFor(idx.target.OS)
	dlls := make(map[string]DllLocation)
	if systemDir := idx.SystemPluginsDir(); systemDir != "" {
		for _, path := range globDlls(systemDir, ext) {
			dlls[filepath.Base(path)] = DllLocation{Path: path, UserInstalled: false}
		}
	}
	for _, path := range globDlls(idx.UserPluginsDir(), ext) {
		dlls[filepath.Base(path)] = DllLocation{Path: path, UserInstalled: true}
	}
	idx.dlls = dlls
	return dlls
}

func globDlls(dir, ext string) []string {
	if dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil {
		return nil
	}
	return matches
}

// InstalledPathForDll locates an installed binary by file name.
func (idx *MainIndex) InstalledPathForDll(binary string) (DllLocation, bool) {
	loc, ok := idx.InstalledDlls()[binary]
	if !ok {
		slog.Debug("binary not found in the installed dlls", slog.String("binary", binary))
	}
	return loc, ok
}

// InstalledPluginInfo describes the installed state of one plugin.
type InstalledPluginInfo struct {
	// Name of the plugin.
	Name string

	// DllPath is the installed shared library.
	DllPath string

	// Version recorded at install time, or the Unknown sentinel for
	// binaries installed outside risset.
	Version string

	// ManifestPath is the installation manifest, empty without one.
	ManifestPath string

	// InSystemFolder is true when the binary belongs to the csound
	// installation itself.
	InSystemFolder bool
}

// InstalledInfo returns the installed state of the plugin, or nil when
// it is not installed or defines no binary for the target platform.
func (idx *MainIndex) InstalledInfo(p *plugin.Plugin) *InstalledPluginInfo {
	binary := p.FindBinary(idx.target, idx.csoundVersion)
	if binary == nil {
		slog.Debug("plugin has no binary for this platform and csound version",
			logfields.Plugin(p.Name), logfields.Platform(idx.target.String()))
		return nil
	}
	loc, ok := idx.InstalledPathForDll(binary.Filename())
	if !ok {
		slog.Debug("plugin is not installed", logfields.Plugin(p.Name))
		return nil
	}

	info := &InstalledPluginInfo{
		Name:    p.Name,
		DllPath: loc.Path,
		Version: installed.UnknownVersion,
	}
	if systemDir := idx.SystemPluginsDir(); systemDir != "" {
		info.InSystemFolder = filepath.Dir(loc.Path) == systemDir
	}
	if manifest, path := idx.store.Find(p.Name); manifest != nil {
		info.Version = manifest.Version
		info.ManifestPath = path
	}
	return info
}

// IsInstalled reports whether the plugin's binary is present. With
// verify set, the plugin's first opcode must additionally be recognized
// by csound; when csound cannot be queried the check degrades to binary
// presence with a warning.
func (idx *MainIndex) IsInstalled(ctx context.Context, p *plugin.Plugin, verify bool) bool {
	binary := p.FindBinary(idx.target, idx.csoundVersion)
	if binary == nil {
		return false
	}
	if _, ok := idx.InstalledPathForDll(binary.Filename()); !ok {
		return false
	}
	if !verify || len(p.Opcodes) == 0 {
		return true
	}
	ok, err := idx.host.HasOpcode(ctx, p.Opcodes[0])
	if err != nil {
		slog.Warn("could not query csound for the plugin's opcodes",
			logfields.Plugin(p.Name), logfields.Error(err))
		return true
	}
	return ok
}

// DefinedOpcodes returns every opcode of the catalogue with its man page
// abstract and syntax lines, sorted by name. The result is memoized
// until Invalidate.
func (idx *MainIndex) DefinedOpcodes(ctx context.Context) []Opcode {
	if idx.opcodes != nil {
		return idx.opcodes
	}
	var opcodes []Opcode
	for _, p := range idx.Sorted() {
		pluginInstalled := idx.IsInstalled(ctx, p, false)
		for _, name := range p.Opcodes {
			opcode := Opcode{
				Name:      name,
				Plugin:    p.Name,
				Installed: pluginInstalled,
				Abstract:  "?",
			}
			if manpage, ok := idx.parseManpage(p, name); ok {
				opcode.Abstract = manpage.Abstract
				opcode.Syntaxes = manpage.Syntaxes
			}
			opcodes = append(opcodes, opcode)
		}
	}
	sort.Slice(opcodes, func(i, j int) bool {
		return strings.ToLower(opcodes[i].Name) < strings.ToLower(opcodes[j].Name)
	})
	idx.opcodes = opcodes
	return opcodes
}

func (idx *MainIndex) parseManpage(p *plugin.Plugin, opcode string) (*docs.ManPage, bool) {
	path, ok := p.Manpage(opcode)
	if !ok {
		slog.Debug("no manpage for opcode", logfields.Opcode(opcode), logfields.Plugin(p.Name))
		return nil, false
	}
	manpage, err := docs.ParseManpage(path, opcode)
	if err != nil {
		slog.Warn("could not parse manpage",
			logfields.Opcode(opcode), logfields.Path(path), logfields.Error(err))
		return nil, false
	}
	return manpage, true
}

// FindManpage returns the markdown man page of the given opcode.
func (idx *MainIndex) FindManpage(opcode string) (string, error) {
	for _, p := range idx.Sorted() {
		for _, name := range p.Opcodes {
			if name != opcode {
				continue
			}
			path, ok := p.Manpage(opcode)
			if !ok {
				return "", errors.Newf(errors.KindIO,
					"no manpage found for opcode %s (plugin %s)", opcode, p.Name)
			}
			return path, nil
		}
	}
	return "", errors.Newf(errors.KindInvalidArgument, "opcode %s not found", opcode)
}

// FindManpageHTML returns the generated html page of the given opcode.
// The documentation must have been generated first.
func (idx *MainIndex) FindManpageHTML(opcode string) (string, error) {
	docFolder := idx.cfg.ManDir()
	if _, err := os.Stat(docFolder); err != nil {
		return "", errors.Newf(errors.KindIO,
			"documentation needs to be generated first (run risset makedocs)")
	}
	page := filepath.Join(docFolder, "site", "opcodes", opcode+".html")
	if _, err := os.Stat(page); err != nil {
		return "", errors.Newf(errors.KindIO, "no html page found for opcode %s, expected path: %s", opcode, page)
	}
	return page, nil
}

// PluginDocs gathers the documentation inputs of every catalogued
// plugin, in the form the site generator consumes.
func (idx *MainIndex) PluginDocs(ctx context.Context) []docs.PluginDocs {
	out := make([]docs.PluginDocs, 0, len(idx.Plugins))
	for _, p := range idx.Sorted() {
		folder, err := p.DocFolder()
		if err != nil {
			slog.Debug("no docs found for plugin", logfields.Plugin(p.Name))
			folder = ""
		}
		out = append(out, docs.PluginDocs{
			Name:             p.Name,
			ShortDescription: p.ShortDescription,
			Opcodes:          p.Opcodes,
			DocFolder:        folder,
			Installed:        idx.IsInstalled(ctx, p, false),
		})
	}
	return out
}
