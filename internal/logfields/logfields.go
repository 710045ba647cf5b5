package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPlugin     = "plugin"
	KeyOpcode     = "opcode"
	KeyVersion    = "version"
	KeyPlatform   = "platform"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyOperation  = "operation"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Helpers returning slog.Attr, one per canonical key.
func Plugin(name string) slog.Attr     { return slog.String(KeyPlugin, name) }
func Opcode(name string) slog.Attr     { return slog.String(KeyOpcode, name) }
func Version(v string) slog.Attr       { return slog.String(KeyVersion, v) }
func Platform(p string) slog.Attr      { return slog.String(KeyPlatform, p) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Operation(op string) slog.Attr    { return slog.String(KeyOperation, op) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
