package csound

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csound-plugins/risset/internal/platform"
	"github.com/csound-plugins/risset/internal/versioning"
)

func TestParseVersionBanner(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		want   versioning.ID
		wantOK bool
	}{
		{
			name: "typical banner",
			out: "virtual_keyboard real time MIDI plugin for Csound\n" +
				"--Csound version 6.18 (double samples) Nov 10 2022\n" +
				"[commit: none]\n",
			want:   6180,
			wantOK: true,
		},
		{
			name:   "version 7 beta",
			out:    "--Csound version 7.0 beta (double samples) 2024\n",
			want:   7000,
			wantOK: true,
		},
		{
			name:   "no version line",
			out:    "usage: csound [options] orcfile scofile\n",
			wantOK: false,
		},
		{
			name:   "empty output",
			out:    "",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVersionBanner(tt.out)
			if ok != tt.wantOK {
				t.Fatalf("ParseVersionBanner() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseVersionBanner() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseOpcodeListing(t *testing.T) {
	out := "ATSadd\n" +
		"ATSaddnz\n" +
		"  poscil     a  a[ki][ki][io]\n" +
		"\n" +
		"oscili a  ak[ki][io]\n"
	opcodes := ParseOpcodeListing(out)
	for _, name := range []string{"ATSadd", "ATSaddnz", "poscil", "oscili"} {
		if !opcodes[name] {
			t.Errorf("opcode %q not found in parsed listing", name)
		}
	}
	if len(opcodes) != 4 {
		t.Errorf("len(opcodes) = %d, want 4", len(opcodes))
	}
}

func TestUserPluginsPathEnvOverride(t *testing.T) {
	t.Setenv("CS_USER_PLUGINDIR", "/opt/csound/plugins")
	if got := UserPluginsPath(6); got != "/opt/csound/plugins" {
		t.Errorf("UserPluginsPath(6) = %q, want env override", got)
	}
}

func TestUserPluginsPathDefault(t *testing.T) {
	t.Setenv("CS_USER_PLUGINDIR", "")
	got := UserPluginsPath(6)
	if got == "" {
		t.Fatal("UserPluginsPath(6) returned empty path")
	}
	if filepath.Base(got) != "plugins64" {
		t.Errorf("UserPluginsPath(6) = %q, want a plugins64 directory", got)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("UserPluginsPath(6) = %q, want absolute path", got)
	}
}

func TestSystemPluginsPathProbesKnownDll(t *testing.T) {
	linux := platform.Platform{OS: "linux", Arch: "x86_64"}

	empty := t.TempDir()
	withDll := t.TempDir()
	if err := os.WriteFile(filepath.Join(withDll, "libarrayops.so"), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}

	candidates := []string{empty, withDll}
	if got := findSystemPluginsPath(candidates, 6, linux); got != withDll {
		t.Errorf("findSystemPluginsPath() = %q, want %q", got, withDll)
	}
	if got := findSystemPluginsPath([]string{empty}, 6, linux); got != "" {
		t.Errorf("findSystemPluginsPath() = %q, want empty for no match", got)
	}

	// The version 6 probe dll must not satisfy a version 7 lookup.
	if got := findSystemPluginsPath(candidates, 7, linux); got != "" {
		t.Errorf("findSystemPluginsPath(major=7) = %q, want empty", got)
	}
}

func TestSystemPluginsPathEnvOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "librtpa.so"), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPCODE7DIR64", dir)
	linux := platform.Platform{OS: "linux", Arch: "x86_64"}
	if got := SystemPluginsPath(7, linux); got != dir {
		t.Errorf("SystemPluginsPath(7) = %q, want %q", got, dir)
	}
}

func TestProbeDll(t *testing.T) {
	tests := []struct {
		major int
		p     platform.Platform
		want  string
	}{
		{6, platform.Platform{OS: "linux", Arch: "x86_64"}, "libarrayops.so"},
		{6, platform.Platform{OS: "macos", Arch: "arm64"}, "libarrayops.dylib"},
		{6, platform.Platform{OS: "windows", Arch: "x86_64"}, "arrayops.dll"},
		{7, platform.Platform{OS: "linux", Arch: "x86_64"}, "librtpa.so"},
		{7, platform.Platform{OS: "windows", Arch: "x86_64"}, "rtpa.dll"},
		{8, platform.Platform{OS: "linux", Arch: "x86_64"}, ""},
	}
	for _, tt := range tests {
		if got := probeDll(tt.major, tt.p); got != tt.want {
			t.Errorf("probeDll(%d, %s) = %q, want %q", tt.major, tt.p, got, tt.want)
		}
	}
}

func TestNewHostDefaultsBinary(t *testing.T) {
	h := NewHost("")
	if h.binary != "csound" {
		t.Errorf("NewHost(\"\").binary = %q, want csound", h.binary)
	}
}

func TestHostPathNotFound(t *testing.T) {
	h := NewHost("definitely-not-a-real-binary-name-for-tests")
	if _, err := h.Path(); !IsNotFound(err) {
		t.Errorf("Path() error = %v, want ErrNotFound", err)
	}
	// Memoized: a second call returns the same error.
	if _, err := h.Path(); !IsNotFound(err) {
		t.Errorf("Path() second call error = %v, want ErrNotFound", err)
	}
}
