// Package install implements the plugin installation lifecycle: binary
// resolution, artifact verification, deployment into the plugins
// directory, asset installation and the manifest bookkeeping needed to
// uninstall cleanly.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/csound-plugins/risset/internal/config"
	"github.com/csound-plugins/risset/internal/csound"
	"github.com/csound-plugins/risset/internal/download"
	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/git"
	"github.com/csound-plugins/risset/internal/installed"
	"github.com/csound-plugins/risset/internal/journal"
	"github.com/csound-plugins/risset/internal/logfields"
	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/plugin"
	"github.com/csound-plugins/risset/internal/versioning"
)

// Installer performs install and uninstall operations for one target
// platform.
type Installer struct {
	cfg    *config.Config
	host   *csound.Host
	target platform.Platform
	git    *git.Client
	dl     *download.Client
	store  *installed.Store

	// jnl records operations, optional.
	jnl *journal.Store
}

// New creates an Installer. jnl may be nil, in which case operations are
// not journaled.
func New(cfg *config.Config, host *csound.Host, target platform.Platform, gitClient *git.Client, dlClient *download.Client, jnl *journal.Store) *Installer {
	return &Installer{
		cfg:    cfg,
		host:   host,
		target: target,
		git:    gitClient,
		dl:     dlClient,
		store:  installed.NewStore(cfg.InstalledManifestsDir()),
		jnl:    jnl,
	}
}

// Store returns the installation manifest store.
func (ins *Installer) Store() *installed.Store {
	return ins.store
}

// PluginsDir returns the directory plugins are installed into for the
// given csound version, honoring the configuration override.
func (ins *Installer) PluginsDir(csoundVersion versioning.ID) string {
	if ins.cfg.UserPluginsDir != "" {
		return ins.cfg.UserPluginsDir
	}
	major, _, _ := csoundVersion.Split()
	return csound.UserPluginsPath(major)
}

// ResolveBinary locates the shared library for the plugin on the target
// platform, downloading and extracting as needed. The returned path is a
// local file ready to be copied into the plugins directory.
func (ins *Installer) ResolveBinary(ctx context.Context, p *plugin.Plugin, csoundVersion versioning.ID) (string, *plugin.Binary, error) {
	bin := p.FindBinary(ins.target, csoundVersion)
	if bin == nil {
		return "", nil, errors.PlatformNotSupported(p.Name, ins.target.String(), int(csoundVersion), p.AvailableBinaries())
	}

	var artifact string
	if git.IsURL(bin.URL) {
		downloaded, err := ins.dl.Fetch(ctx, bin.URL, "")
		if err != nil {
			return "", nil, err
		}
		artifact = downloaded
	} else {
		// The url points to a local file relative to the manifest.
		artifact = p.ResolvePath(bin.URL)
	}
	slog.Debug("resolved binary artifact", logfields.Plugin(p.Name), logfields.Path(artifact))
	if _, err := os.Stat(artifact); err != nil {
		return "", nil, errors.Wrapf(err, errors.KindIO, "binary not found, given path was %s", artifact)
	}
	if err := download.VerifyArtifact(artifact); err != nil {
		return "", nil, err
	}

	switch filepath.Ext(artifact) {
	case ".so", ".dll", ".dylib":
		return artifact, bin, nil
	case ".zip":
		if bin.ExtractPath == "" {
			return "", nil, errors.SchemaErrorf(
				"the binary definition for %s has a compressed url %s but does not define"+
					" an extractpath to locate the library inside the archive", p.Name, bin.URL)
		}
		extractDir, err := os.MkdirTemp("", "risset-extract-*")
		if err != nil {
			return "", nil, errors.Wrap(err, errors.KindIO, "could not create extraction directory")
		}
		dll, err := extractArchiveFile(artifact, bin.ExtractPath, extractDir)
		if err != nil {
			return "", nil, errors.Wrapf(err, errors.KindInstallFailure,
				"error while extracting %s from %s", bin.ExtractPath, artifact)
		}
		return dll, bin, nil
	default:
		return "", nil, errors.SchemaErrorf("suffix %s not supported in url: %s", filepath.Ext(artifact), bin.URL)
	}
}

// Install deploys the plugin for the given csound version. With verify
// set, the install is only considered successful when csound recognizes
// the plugin's first opcode afterwards. The installation manifest is
// written last, so a failed install leaves no manifest behind.
func (ins *Installer) Install(ctx context.Context, p *plugin.Plugin, csoundVersion versioning.ID, verify bool) error {
	op := journal.OpInstall
	if ins.store.Exists(p.Name) {
		op = journal.OpUpgrade
	}

	dll, bin, err := ins.ResolveBinary(ctx, p, csoundVersion)
	if err != nil {
		return err
	}

	installDir := ins.PluginsDir(csoundVersion)
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create plugins directory %s", installDir)
	}
	installedPath := filepath.Join(installDir, filepath.Base(dll))
	slog.Debug("installing binary", logfields.Plugin(p.Name), logfields.Path(installedPath))
	if err := copyFile(dll, installedPath); err != nil {
		return errors.Wrapf(err, errors.KindInstallFailure, "could not copy the binary to the install path %s", installDir)
	}
	if _, err := os.Stat(installedPath); err != nil {
		return errors.Newf(errors.KindInstallFailure,
			"installation of plugin %s failed, binary was not found in the expected path: %s", p.Name, installedPath)
	}
	ins.host.Invalidate()

	if verify {
		if err := ins.verifyRecognized(ctx, p, installedPath); err != nil {
			return err
		}
	}

	assetFiles, err := ins.installAssets(ctx, p)
	if err != nil {
		return err
	}

	if bin.PostInstall != "" {
		ins.runPostInstall(ctx, p, bin)
	}

	manifest := installed.NewManifest(p, bin, ins.target, assetFiles)
	if err := ins.store.Save(manifest); err != nil {
		return err
	}
	slog.Debug("saved installation manifest", logfields.Plugin(p.Name), logfields.Path(ins.store.Path(p.Name)))

	ins.record(ctx, op, p, "")
	return nil
}

// verifyRecognized checks that csound picked up the plugin, trying to
// codesign the binary on macOS when it did not.
func (ins *Installer) verifyRecognized(ctx context.Context, p *plugin.Plugin, installedPath string) error {
	if len(p.Opcodes) == 0 {
		return nil
	}
	opcode := p.Opcodes[0]
	ok, err := ins.host.HasOpcode(ctx, opcode)
	if err != nil {
		if csound.IsNotFound(err) {
			slog.Warn("csound not found, skipping opcode verification", logfields.Plugin(p.Name))
			return nil
		}
		return err
	}
	if ok {
		return nil
	}
	if ins.target.OS == "macos" {
		slog.Debug("the installed binary is not recognized by csound, trying to codesign it",
			logfields.Path(installedPath))
		if err := ins.Codesign(ctx, []string{installedPath}); err != nil {
			slog.Warn("codesign failed", logfields.Error(err))
		} else {
			ins.host.Invalidate()
			if ok, err := ins.host.HasOpcode(ctx, opcode); err == nil && ok {
				slog.Debug("codesigning made the plugin loadable")
				return nil
			}
		}
	}
	return errors.Newf(errors.KindInstallFailure,
		"tried to install plugin %s, but opcode %s, which is provided by this plugin, is not present",
		p.Name, opcode)
}

// Codesign ad-hoc signs the given libraries with the entitlements csound
// plugins need on macOS.
func (ins *Installer) Codesign(ctx context.Context, libraryPaths []string) error {
	entitlements := filepath.Join(ins.cfg.AssetsDir(), "csoundplugins.entitlements")
	return codesign(ctx, libraryPaths, "-", entitlements)
}

// installAssets installs every asset matching the target platform and
// returns the installed file names.
func (ins *Installer) installAssets(ctx context.Context, p *plugin.Plugin) ([]string, error) {
	var assetFiles []string
	for _, asset := range p.Assets {
		if !asset.MatchesPlatform(ins.target) {
			continue
		}
		slog.Debug("installing asset", logfields.Plugin(p.Name), slog.String("asset", asset.Identifier()))
		names, err := ins.installAsset(ctx, asset, p.Name)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindInstallFailure,
				"could not install asset %s", asset.Identifier())
		}
		assetFiles = append(assetFiles, names...)
	}
	return assetFiles, nil
}

// installAsset copies the asset's files into the plugin's asset folder
// and returns their names.
func (ins *Installer) installAsset(ctx context.Context, asset *plugin.Asset, pluginName string) ([]string, error) {
	sources, err := ins.retrieveAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	destDir := ins.cfg.PluginAssetsDir(pluginName)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "could not create %s", destDir)
	}
	var names []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindIO, "could not access asset file %s", src)
		}
		if info.IsDir() {
			err = copyDir(src, filepath.Join(destDir, filepath.Base(src)))
		} else {
			err = copyFile(src, filepath.Join(destDir, filepath.Base(src)))
		}
		if err != nil {
			return nil, err
		}
		names = append(names, filepath.Base(src))
	}
	return names, nil
}

// retrieveAsset materializes the asset locally: a git source is cloned
// under the clones directory, a plain url downloaded once per process,
// an archive expanded. Returns the local paths selected by the asset
// patterns.
func (ins *Installer) retrieveAsset(ctx context.Context, asset *plugin.Asset) ([]string, error) {
	var root string
	switch {
	case git.IsGitURL(asset.Source):
		clone, err := ins.git.Ensure(ctx, asset.Source)
		if err != nil {
			return nil, err
		}
		root = clone
	case git.IsURL(asset.Source):
		downloaded, err := ins.dl.Fetch(ctx, asset.Source, "")
		if err != nil {
			return nil, err
		}
		root = downloaded
	default:
		if !filepath.IsAbs(asset.Source) {
			return nil, errors.Newf(errors.KindInvalidArgument,
				"asset source should be a url or an absolute path, got %s", asset.Source)
		}
		root = asset.Source
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "asset source does not exist: %s", root)
	}
	switch {
	case info.IsDir():
		var collected []string
		for _, pattern := range asset.Patterns {
			matches, err := filepath.Glob(filepath.Join(root, pattern))
			if err != nil {
				return nil, errors.Wrapf(err, errors.KindInvalidArgument, "invalid asset pattern %s", pattern)
			}
			collected = append(collected, matches...)
		}
		return collected, nil
	case filepath.Ext(root) == ".zip":
		extractDir, err := os.MkdirTemp("", "risset-assets-*")
		if err != nil {
			return nil, errors.Wrap(err, errors.KindIO, "could not create extraction directory")
		}
		return extractMatching(root, asset.Patterns, extractDir)
	default:
		return []string{root}, nil
	}
}

// runPostInstall executes the binary's post-install script through the
// shell, from the manifest directory. A failing script does not abort
// the installation.
func (ins *Installer) runPostInstall(ctx context.Context, p *plugin.Plugin, bin *plugin.Binary) {
	script := p.ResolvePath(bin.PostInstall)
	slog.Debug("running post-install script", logfields.Plugin(p.Name), logfields.Path(script))
	shell, flag := "/bin/sh", "-c"
	if runtime.GOOS == "windows" {
		shell, flag = "cmd", "/C"
	}
	// #nosec G204 -- the script comes from the plugin manifest
	cmd := exec.CommandContext(ctx, shell, flag, script)
	cmd.Dir = p.ManifestDir()
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.Warn("post-install script failed",
			logfields.Plugin(p.Name), logfields.Error(err),
			slog.String("output", strings.TrimSpace(string(out))))
	}
}

// Uninstall removes the plugin binary and, when removeAssets is set, the
// assets recorded in its installation manifest. dllPath is the installed
// binary as resolved by the catalogue; inSystemFolder guards against
// removing files owned by the csound installation itself.
func (ins *Installer) Uninstall(ctx context.Context, p *plugin.Plugin, dllPath string, inSystemFolder, removeAssets bool) error {
	if dllPath == "" {
		return errors.NotInstalled(p.Name)
	}
	if _, err := os.Stat(dllPath); err != nil {
		return errors.Wrapf(err, errors.KindIO,
			"could not find the binary for plugin %s, declared binary: %s", p.Name, dllPath)
	}
	if inSystemFolder {
		return errors.SystemFolderProtection(p.Name, dllPath)
	}
	if err := os.Remove(dllPath); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not remove %s", dllPath)
	}
	if _, err := os.Stat(dllPath); err == nil {
		return errors.Newf(errors.KindInternal, "attempted to remove %s, but the file is still present", dllPath)
	}
	ins.host.Invalidate()

	if ins.store.Exists(p.Name) {
		if err := ins.removeManifestAndAssets(p.Name, removeAssets); err != nil {
			return err
		}
	}
	ins.record(ctx, journal.OpUninstall, p, "")
	return nil
}

func (ins *Installer) removeManifestAndAssets(name string, removeAssets bool) error {
	manifest, err := ins.store.Load(name)
	if err != nil {
		// The binary is already gone, remove the broken manifest as well.
		slog.Warn("could not read installation manifest", logfields.Plugin(name), logfields.Error(err))
		return ins.store.Remove(name)
	}
	assetsDir := ins.cfg.PluginAssetsDir(name)
	if removeAssets {
		if _, err := os.Stat(assetsDir); err == nil {
			slog.Debug("removing assets", logfields.Plugin(name), logfields.Count(len(manifest.AssetFiles)))
			for _, assetFile := range manifest.AssetFiles {
				full := filepath.Join(assetsDir, assetFile)
				if err := os.RemoveAll(full); err != nil {
					slog.Warn("could not remove asset", logfields.Path(full), logfields.Error(err))
				}
			}
			remaining, err := os.ReadDir(assetsDir)
			if err == nil && len(remaining) > 0 {
				names := make([]string, len(remaining))
				for i, entry := range remaining {
					names[i] = entry.Name()
				}
				slog.Info("removing remaining assets in the plugin folder",
					logfields.Path(assetsDir), slog.String("assets", strings.Join(names, ", ")))
			}
			if err := os.RemoveAll(assetsDir); err != nil {
				return errors.Wrapf(err, errors.KindIO, "could not remove assets folder %s", assetsDir)
			}
		}
	}
	return ins.store.Remove(name)
}

func (ins *Installer) record(ctx context.Context, op string, p *plugin.Plugin, detail string) {
	if ins.jnl == nil {
		return
	}
	if err := ins.jnl.Record(ctx, op, p.Name, p.Version, ins.target.String(), detail); err != nil {
		slog.Warn("could not record the operation in the journal",
			logfields.Operation(op), logfields.Error(err))
	}
}

// ShouldUpgrade decides whether an installed plugin should be replaced
// by the catalogue version. installedVersion is the version recorded at
// install time, possibly the Unknown sentinel for plugins installed
// outside risset. Returns the decision and, when negative, the reason.
func ShouldUpgrade(installedVersion, availableVersion string, force bool) (bool, string) {
	if installedVersion == installed.UnknownVersion || installedVersion == "" {
		if force {
			return true, ""
		}
		return false, "installed version unknown, use force to reinstall"
	}
	have, err := versioning.ParseTriple(versioning.Normalize(installedVersion, "0.0.0"))
	if err != nil {
		if force {
			return true, ""
		}
		return false, fmt.Sprintf("cannot parse installed version %q, use force to reinstall", installedVersion)
	}
	want, err := versioning.ParseTriple(versioning.Normalize(availableVersion, "0.0.0"))
	if err != nil {
		return false, fmt.Sprintf("cannot parse catalogue version %q", availableVersion)
	}
	if have.Compare(want) >= 0 {
		if force {
			return true, ""
		}
		return false, fmt.Sprintf("installed version %s is up to date", installedVersion)
	}
	return true, ""
}
