// Package errors provides a lightweight structured error type (RissetError)
// for kind-based classification of failures across the catalogue and the
// install/uninstall lifecycle.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a risset error.
type Kind string

const (
	// Catalogue and manifest errors
	KindSchema Kind = "schema"
	KindParse  Kind = "parse"

	// Resolution and lifecycle errors
	KindPlatformNotSupported   Kind = "platform_not_supported"
	KindInstallFailure         Kind = "install_failure"
	KindNotInstalled           Kind = "not_installed"
	KindSystemFolderProtection Kind = "system_folder_protection"

	// Ambient errors
	KindInvalidArgument Kind = "invalid_argument"
	KindNetwork         Kind = "network"
	KindIO              Kind = "io"
	KindConfig          Kind = "config"
	KindInternal        Kind = "internal"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Stops execution
	SeverityError   Severity = "error"   // Error, but not fatal
	SeverityWarning Severity = "warning" // Continues with degraded functionality
)

// RissetError is a structured error with kind, severity, and context
type RissetError struct {
	Kind     Kind          `json:"kind"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for a RissetError
type ContextFields map[string]any

// Error implements the error interface
func (e *RissetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *RissetError) Unwrap() error {
	return e.Cause
}

// WithSeverity overrides the default severity
func (e *RissetError) WithSeverity(s Severity) *RissetError {
	e.Severity = s
	return e
}

// WithContext adds context information to the error
func (e *RissetError) WithContext(key string, value any) *RissetError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new RissetError
func New(kind Kind, message string) *RissetError {
	return &RissetError{
		Kind:     kind,
		Severity: SeverityError,
		Message:  message,
	}
}

// Newf creates a new RissetError with a formatted message
func Newf(kind Kind, format string, args ...any) *RissetError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates a new RissetError that wraps an existing error
func Wrap(err error, kind Kind, message string) *RissetError {
	return &RissetError{
		Kind:     kind,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}

// Wrapf creates a new wrapping RissetError with a formatted message
func Wrapf(err error, kind Kind, format string, args ...any) *RissetError {
	return Wrap(err, kind, fmt.Sprintf(format, args...))
}

// IsKind checks if an error belongs to a specific kind, looking through
// wrapped errors.
func IsKind(err error, kind Kind) bool {
	var re *RissetError
	if stderrors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// GetKind extracts the kind from an error, or returns KindInternal if the
// error is not a RissetError.
func GetKind(err error) Kind {
	var re *RissetError
	if stderrors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// SchemaError creates a schema violation error (manifest/index shape)
func SchemaError(message string) *RissetError {
	return New(KindSchema, message)
}

// SchemaErrorf creates a schema violation error with a formatted message
func SchemaErrorf(format string, args ...any) *RissetError {
	return Newf(KindSchema, format, args...)
}

// ParseError creates a parse error (malformed version range or similar)
func ParseError(message string) *RissetError {
	return New(KindParse, message)
}

// ParseErrorf creates a parse error with a formatted message
func ParseErrorf(format string, args ...any) *RissetError {
	return Newf(KindParse, format, args...)
}

// NotInstalled creates an error for operations requiring an installed plugin
func NotInstalled(plugin string) *RissetError {
	return Newf(KindNotInstalled, "plugin %s is not installed", plugin).
		WithContext("plugin", plugin)
}

// PlatformNotSupported creates the error for a plugin with no binary
// matching the running platform and csound version.
func PlatformNotSupported(plugin, platformID string, csoundVersion int, available []string) *RissetError {
	return Newf(KindPlatformNotSupported,
		"no binary defined for platform %s / %d. Available platforms for %s: %s",
		platformID, csoundVersion, plugin, strings.Join(available, ", ")).
		WithContext("plugin", plugin).
		WithContext("platform", platformID)
}

// SystemFolderProtection creates the hard-failure error for uninstall
// attempts against a system-owned install. There is no remediation path.
func SystemFolderProtection(plugin, path string) *RissetError {
	return Newf(KindSystemFolderProtection,
		"plugin %s is installed in the system folder and needs to be removed manually (path: %s)",
		plugin, path).
		WithSeverity(SeverityFatal).
		WithContext("plugin", plugin).
		WithContext("path", path)
}
