// Package platform identifies the running operating-system/architecture pair
// and normalizes the platform strings declared in plugin manifests.
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform is an os/arch pair. The zero value is invalid.
type Platform struct {
	OS   string // linux, macos, windows
	Arch string // x86_64, arm64
}

func (p Platform) String() string {
	if p.OS == "" {
		return ""
	}
	return p.OS + "-" + p.Arch
}

// MarshalText encodes the platform as its id, "linux-x86_64" style.
func (p Platform) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a platform id, accepting the same shorthand
// forms as Normalize.
func (p *Platform) UnmarshalText(text []byte) error {
	normalized, ok := Normalize(string(text))
	if !ok {
		return fmt.Errorf("platform %q not supported", string(text))
	}
	*p = normalized
	return nil
}

// IsValid reports whether the platform belongs to the supported set.
func (p Platform) IsValid() bool {
	_, ok := supported[p.String()]
	return ok
}

var supported = map[string]struct{}{
	"linux-x86_64":   {},
	"windows-x86_64": {},
	"macos-x86_64":   {},
	"macos-arm64":    {},
	"linux-arm64":    {},
}

// Supported returns the supported platform ids in stable order.
func Supported() []string {
	return []string{"linux-x86_64", "linux-arm64", "macos-x86_64", "macos-arm64", "windows-x86_64"}
}

// Current derives the platform of the running process. It is pure: the
// result depends only on the compile-time GOOS/GOARCH pair.
func Current() Platform {
	var os string
	switch runtime.GOOS {
	case "darwin":
		os = "macos"
	case "windows":
		os = "windows"
	default:
		os = "linux"
	}
	var arch string
	switch runtime.GOARCH {
	case "arm64":
		arch = "arm64"
	case "arm":
		arch = "arm32"
	case "386":
		arch = "x86"
	default:
		arch = "x86_64"
	}
	return Platform{OS: os, Arch: arch}
}

// Normalize resolves a platform string declared in a manifest. For
// compatibility with older manifests the architecture may be missing:
// "linux" and "windows" resolve to their -x86_64 variants, "macos" to
// macos-arm64. Anything else must match the supported set exactly.
// The second return value is false for unsupported values.
func Normalize(s string) (Platform, bool) {
	switch s {
	case "linux", "windows":
		s += "-x86_64"
	case "macos":
		s += "-arm64"
	}
	if _, ok := supported[s]; !ok {
		return Platform{}, false
	}
	os, arch, _ := strings.Cut(s, "-")
	return Platform{OS: os, Arch: arch}, true
}
