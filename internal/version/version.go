// Package version holds the build-time identity of the risset binary.
package version

import "strings"

// Version is the release version, set via build-time ldflags:
// go build -ldflags "-X github.com/csound-plugins/risset/internal/version.Version=v3.1.0".
var Version = "unknown"

// Build metadata, also set via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Full renders the version together with any build metadata that was
// set, "v3.1.0 (1a2b3c4, 2026-01-02)" style.
func Full() string {
	var meta []string
	if GitCommit != "" && GitCommit != "unknown" {
		meta = append(meta, GitCommit)
	}
	if BuildTime != "" && BuildTime != "unknown" {
		meta = append(meta, BuildTime)
	}
	if len(meta) == 0 {
		return Version
	}
	return Version + " (" + strings.Join(meta, ", ") + ")"
}
