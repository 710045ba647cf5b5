package install

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/logfields"
)

// Entitlements csound plugins need on macOS to be loadable by a
// hardened-runtime csound.
const entitlementsXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>com.apple.security.cs.disable-library-validation</key>
    <true/>
    <key>com.apple.security.device.audio-input</key>
    <true/>
    <key>com.apple.security.device.camera</key>
    <true/>
</dict>
</plist>
`

// entitlementsSaved tracks whether the plist was written this process.
var entitlementsSaved bool

func writeEntitlements(path string) error {
	if entitlementsSaved {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, []byte(entitlementsXML), 0o644); err != nil {
		return errors.Wrapf(err, errors.KindIO, "could not write entitlements file %s", path)
	}
	entitlementsSaved = true
	slog.Debug("saved entitlements file", logfields.Path(path))
	return nil
}

// codesign signs the given libraries with the entitlements file, using
// "-" as signature for an ad-hoc local signature.
func codesign(ctx context.Context, libraryPaths []string, signature, entitlementsPath string) error {
	bin, err := exec.LookPath("codesign")
	if err != nil {
		return errors.Wrap(err, errors.KindInstallFailure, "could not find the codesign executable in the path")
	}
	if err := writeEntitlements(entitlementsPath); err != nil {
		return err
	}
	for _, lib := range libraryPaths {
		// #nosec G204 -- signing files we just installed
		cmd := exec.CommandContext(ctx, bin, "--force", "--sign", signature, "--entitlements", entitlementsPath, lib)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrapf(err, errors.KindInstallFailure,
				"codesign failed for %s: %s", lib, strings.TrimSpace(string(out)))
		}
		// #nosec G204
		verify := exec.CommandContext(ctx, bin, "--display", "--verbose", lib)
		if out, err := verify.CombinedOutput(); err == nil {
			slog.Debug("code signature", logfields.Path(lib), slog.String("signature", strings.TrimSpace(string(out))))
		}
	}
	return nil
}
