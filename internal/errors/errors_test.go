package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestRissetError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RissetError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(KindSchema, "manifest is missing key name"),
			expected: "schema: manifest is missing key name",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("file not found"), KindIO, "failed to read manifest"),
			expected: "io: failed to read manifest: file not found",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestRissetError_WithContext(t *testing.T) {
	err := New(KindInstallFailure, "copy failed").
		WithContext("plugin", "poly").
		WithContext("path", "/tmp/libpoly.so")

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}

	if err.Context["plugin"] != "poly" {
		t.Errorf("Context[plugin] = %v, want poly", err.Context["plugin"])
	}

	if err.Context["path"] != "/tmp/libpoly.so" {
		t.Errorf("Context[path] = %v, want /tmp/libpoly.so", err.Context["path"])
	}
}

func TestIsKind(t *testing.T) {
	schemaErr := SchemaError("zero binaries")
	parseErr := ParseError("bad range")
	standardErr := fmt.Errorf("standard error")
	wrappedErr := fmt.Errorf("loading plugin: %w", schemaErr)

	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{"schema error matches schema kind", schemaErr, KindSchema, true},
		{"schema error doesn't match parse kind", schemaErr, KindParse, false},
		{"parse error matches parse kind", parseErr, KindParse, true},
		{"standard error doesn't match any kind", standardErr, KindSchema, false},
		{"kind is found through wrapping", wrappedErr, KindSchema, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsKind(test.err, test.kind)
			if result != test.expected {
				t.Errorf("IsKind() = %v, want %v", result, test.expected)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := Wrap(cause, KindNetwork, "download failed")

	if !stdErrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var re *RissetError
	if !stdErrors.As(err, &re) {
		t.Fatal("errors.As should extract the RissetError")
	}
	if re.Kind != KindNetwork {
		t.Errorf("Kind = %v, want %v", re.Kind, KindNetwork)
	}
}

func TestGetKind(t *testing.T) {
	if got := GetKind(NotInstalled("poly")); got != KindNotInstalled {
		t.Errorf("GetKind() = %v, want %v", got, KindNotInstalled)
	}
	if got := GetKind(fmt.Errorf("plain")); got != KindInternal {
		t.Errorf("GetKind() = %v, want %v", got, KindInternal)
	}
}

func TestSystemFolderProtection(t *testing.T) {
	err := SystemFolderProtection("poly", "/usr/lib/csound/plugins64-6.0/libpoly.so")

	if err.Severity != SeverityFatal {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityFatal)
	}
	if !IsKind(err, KindSystemFolderProtection) {
		t.Error("expected system folder protection kind")
	}
}
