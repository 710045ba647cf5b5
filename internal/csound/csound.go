// Package csound queries the installed Csound host: its version, the set of
// currently loaded opcodes, and the directories it loads plugins from.
//
// risset only ever shells out to the csound executable; the host is optional
// at runtime and callers decide how to degrade when it is absent.
package csound

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/versioning"
)

// ErrNotFound is returned when the csound executable cannot be located.
var ErrNotFound = stderrors.New("csound binary not found")

// IsNotFound reports whether the error indicates a missing csound binary.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

var versionRe = regexp.MustCompile(`--Csound\s+version\s+(\d+)\.(\d+)(.*)`)

// Host probes a csound installation through its executable.
// Results are memoized for the lifetime of the Host; the tool runs
// single-threaded so no locking is applied.
type Host struct {
	binary string

	path       string
	pathErr    error
	pathProbed bool

	version   versioning.ID
	versionOK bool

	opcodes map[string]bool
}

// NewHost creates a probe for the given executable name or path.
// An empty name defaults to "csound" resolved through $PATH.
func NewHost(binary string) *Host {
	if binary == "" {
		binary = "csound"
	}
	return &Host{binary: binary}
}

// Path resolves the csound executable, memoized.
func (h *Host) Path() (string, error) {
	if !h.pathProbed {
		h.pathProbed = true
		path, err := exec.LookPath(h.binary)
		if err != nil {
			h.pathErr = fmt.Errorf("%w: %s", ErrNotFound, h.binary)
		} else {
			h.path = path
		}
	}
	return h.path, h.pathErr
}

// Version queries the installed csound version by parsing the banner of
// `csound --version`. The result is memoized.
func (h *Host) Version(ctx context.Context) (versioning.ID, error) {
	if h.versionOK {
		return h.version, nil
	}
	bin, err := h.Path()
	if err != nil {
		return 0, err
	}
	// #nosec G204 -- invoking csound with a fixed flag
	cmd := exec.CommandContext(ctx, bin, "--version")
	// The banner goes to stderr; csound exits non-zero for a bare
	// --version on some builds, so the exit code is ignored.
	out, _ := cmd.CombinedOutput()
	version, ok := ParseVersionBanner(string(out))
	if !ok {
		return 0, fmt.Errorf("could not find a version number in the output of %s --version", bin)
	}
	h.version = version
	h.versionOK = true
	return h.version, nil
}

// ParseVersionBanner extracts the csound version from the banner printed
// by `csound --version`, e.g. "--Csound version 6.18 (double samples) ...".
func ParseVersionBanner(out string) (versioning.ID, bool) {
	for _, line := range strings.Split(out, "\n") {
		match := versionRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		major, _ := strconv.Atoi(match[1])
		minor, _ := strconv.Atoi(match[2])
		return versioning.ID(major*1000 + minor*10), true
	}
	return 0, false
}

// Opcodes returns the set of opcodes the host currently recognizes,
// parsed from `csound -z1`. The result is memoized.
func (h *Host) Opcodes(ctx context.Context) (map[string]bool, error) {
	if h.opcodes != nil {
		return h.opcodes, nil
	}
	bin, err := h.Path()
	if err != nil {
		return nil, err
	}
	// #nosec G204 -- invoking csound with a fixed flag
	cmd := exec.CommandContext(ctx, bin, "-z1")
	// The opcode listing is split between stdout and stderr depending on
	// the csound build, and -z1 exits non-zero.
	out, _ := cmd.CombinedOutput()
	h.opcodes = ParseOpcodeListing(string(out))
	return h.opcodes, nil
}

// Invalidate drops all memoized probe results. Call after installing or
// removing plugins so the next probe sees the new state.
func (h *Host) Invalidate() {
	h.pathProbed = false
	h.path = ""
	h.pathErr = nil
	h.versionOK = false
	h.version = 0
	h.opcodes = nil
}

// HasOpcode reports whether the host recognizes the given opcode.
func (h *Host) HasOpcode(ctx context.Context, name string) (bool, error) {
	opcodes, err := h.Opcodes(ctx)
	if err != nil {
		return false, err
	}
	return opcodes[name], nil
}

// ParseOpcodeListing extracts opcode names from `csound -z1` output.
// Each non-empty line starts with an opcode name followed by its signatures.
func ParseOpcodeListing(out string) map[string]bool {
	opcodes := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		opcodes[fields[0]] = true
	}
	return opcodes
}

// PluginExtension returns the shared-library extension csound plugins use
// on this OS.
func PluginExtension() string {
	return extensionForOS(runtime.GOOS)
}

// PluginExtensionFor returns the shared-library extension csound plugins
// use on the given OS ("linux", "macos", "windows").
func PluginExtensionFor(os string) string {
	return extensionForOS(os)
}

func extensionForOS(goos string) string {
	switch goos {
	case "darwin", "macos":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// UserPluginsPath returns the directory csound scans for user-installed
// plugins for the given major version. $CS_USER_PLUGINDIR has priority
// over the per-OS default.
func UserPluginsPath(major int) string {
	if dir := os.Getenv("CS_USER_PLUGINDIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	version := fmt.Sprintf("%d.0", major)
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "csound", version, "plugins64")
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			local = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(local, "csound", version, "plugins64")
	default:
		return filepath.Join(home, ".local", "lib", "csound", version, "plugins64")
	}
}

// DefaultSystemPluginsPaths lists candidate directories for the system
// plugin installation of the given major version.
func DefaultSystemPluginsPaths(major int, p platform.Platform) []string {
	version := fmt.Sprintf("%d.0", major)
	switch p.OS {
	case "linux":
		dirs := []string{
			"/usr/local/lib/csound/plugins64-" + version,
			"/usr/lib/csound/plugins64-" + version,
			"/usr/lib/x86_64-linux-gnu/csound/plugins64-" + version,
		}
		if p.Arch == "arm64" {
			// Debian on raspberry pi installs csound's plugins here.
			dirs = append(dirs, "/usr/lib/arm-linux-gnueabihf/csound/plugins64-"+version)
		}
		return dirs
	case "macos":
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		framework := "CsoundLib64.framework/Versions/" + version + "/Resources/Opcodes64"
		return []string{
			// The home-based path is used when csound is compiled from
			// source; that install takes priority.
			"/usr/local/opt/csound/Frameworks/" + framework,
			filepath.Join(home, "Library", "Frameworks", framework),
			"/Library/Frameworks/" + framework,
			"/usr/local/lib/csound/plugins64-" + version,
			"/usr/lib/csound/plugins64-" + version,
		}
	case "windows":
		dirs := []string{fmt.Sprintf(`C:\Program Files\Csound%d_x64\plugins64`, major)}
		dirs = append(dirs, filepath.SplitList(os.Getenv("PATH"))...)
		return dirs
	default:
		return nil
	}
}

// SystemPluginsPath detects the directory holding the system plugin
// installation for the given major version, or "" when none is found.
// $OPCODE6DIR64/$OPCODE7DIR64 override the default candidates.
func SystemPluginsPath(major int, p platform.Platform) string {
	var candidates []string
	if dir := os.Getenv(fmt.Sprintf("OPCODE%dDIR64", major)); dir != "" {
		candidates = filepath.SplitList(dir)
	} else {
		candidates = DefaultSystemPluginsPaths(major, p)
	}
	return findSystemPluginsPath(candidates, major, p)
}

// findSystemPluginsPath probes candidate directories for a dll known to
// ship with every csound install of that major version.
func findSystemPluginsPath(candidates []string, major int, p platform.Platform) string {
	probe := probeDll(major, p)
	if probe == "" {
		return ""
	}
	for _, dir := range candidates {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(abs, probe)); err == nil {
			return abs
		}
	}
	return ""
}

func probeDll(major int, p platform.Platform) string {
	ext := extensionForOS(p.OS)
	switch major {
	case 6:
		if p.OS == "windows" {
			return "arrayops.dll"
		}
		return "libarrayops" + ext
	case 7:
		if p.OS == "windows" {
			return "rtpa.dll"
		}
		return "librtpa" + ext
	default:
		return ""
	}
}
