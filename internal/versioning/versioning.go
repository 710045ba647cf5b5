// Package versioning models Csound version identifiers and the version-range
// expressions used by plugin manifests to declare binary compatibility.
//
// A version id encodes major.minor.patch as major*1000 + minor*10 + patch,
// so "6.19.2" becomes 6192. The encoding floor is 6000 (Csound 6), the first
// version with a plugin ABI this tool supports.
package versioning

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
)

// MinID is the lowest valid version id (Csound 6.0.0).
const MinID ID = 6000

// ID is an encoded Csound version: major*1000 + minor*10 + patch.
type ID int

// ParseID converts a version string ("7", "6.19", "6.19.2") to its id.
// A missing minor or patch defaults to 0. The patch must be a single digit.
// More than three dotted components are accepted but truncated to three.
func ParseID(versionstr string) (ID, error) {
	parts := strings.Split(strings.TrimSpace(versionstr), ".")
	if len(parts) > 3 {
		slog.Warn("Too many version parts (max. 3), using the first 3", "version", versionstr)
		parts = parts[:3]
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, errors.ParseErrorf("could not parse version %q: %v", versionstr, err)
		}
		nums[i] = n
	}
	if len(parts) == 3 && (nums[2] < 0 || nums[2] >= 10) {
		return 0, errors.ParseErrorf("patch number out of range in version %q: got %d", versionstr, nums[2])
	}
	return ID(nums[0]*1000 + nums[1]*10 + nums[2]), nil
}

// String renders the id back to "major.minor.patch".
func (v ID) String() string {
	major, minor, patch := v.Split()
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// Split decomposes the id into its major, minor and patch parts.
func (v ID) Split() (major, minor, patch int) {
	major = int(v) / 1000
	minor = (int(v) - major*1000) / 10
	patch = int(v) % 10
	return major, minor, patch
}

// Triple is a plain plugin version (no encoding floor).
type Triple struct {
	Major int
	Minor int
	Patch int
}

// ParseTriple converts a version string to its integer parts. A missing
// minor or patch defaults to 0; more than three components are truncated.
func ParseTriple(versionstr string) (Triple, error) {
	if versionstr == "" {
		return Triple{}, errors.ParseError("version string is empty")
	}
	parts := strings.Split(versionstr, ".")
	if len(parts) > 3 {
		slog.Debug("Too many version parts (max. 3), using the first 3", "version", versionstr)
		parts = parts[:3]
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Triple{}, errors.ParseErrorf("could not parse version %q", versionstr)
		}
		nums[i] = n
	}
	return Triple{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (t Triple) String() string {
	return fmt.Sprintf("%d.%d.%d", t.Major, t.Minor, t.Patch)
}

// Compare returns -1, 0 or 1 comparing lexicographically by (major, minor, patch).
func (t Triple) Compare(other Triple) int {
	if t.Major != other.Major {
		return sign(t.Major - other.Major)
	}
	if t.Minor != other.Minor {
		return sign(t.Minor - other.Minor)
	}
	return sign(t.Patch - other.Patch)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Normalize expands a version string to its full "major.minor.patch" form.
// An empty string normalizes to the given default.
func Normalize(version, defaultVersion string) string {
	if version == "" {
		version = defaultVersion
	}
	t, err := ParseTriple(version)
	if err != nil {
		return version
	}
	return t.String()
}

// Range is an interval over version ids. Both bounds are >= MinID. A Range
// is immutable once parsed.
type Range struct {
	Min        ID
	Max        ID
	IncludeMin bool
	IncludeMax bool
}

var rangeOps = regexp.MustCompile(`(>=|<=|>|<)`)

// ParseRange parses a version-range expression. Two forms are accepted:
// an exact version ("==6.19") or a concatenation of comparison clauses
// (">=6.18", "<7.0", ">=6.18<7.0"). Clauses apply left to right and a later
// clause in the same direction overwrites an earlier one. An empty expression
// yields the open range (6000, 9999), both bounds exclusive.
func ParseRange(expr string) (Range, error) {
	expr = strings.ReplaceAll(expr, " ", "")
	if strings.HasPrefix(expr, "==") {
		v, err := ParseID(expr[2:])
		if err != nil {
			return Range{}, err
		}
		return Range{Min: v, Max: v, IncludeMin: true, IncludeMax: true}, nil
	}

	var parts []string
	last := 0
	for _, loc := range rangeOps.FindAllStringIndex(expr, -1) {
		if expr[last:loc[0]] != "" {
			parts = append(parts, expr[last:loc[0]])
		}
		parts = append(parts, expr[loc[0]:loc[1]])
		last = loc[1]
	}
	if expr[last:] != "" {
		parts = append(parts, expr[last:])
	}
	if len(parts)%2 != 0 {
		return Range{}, errors.ParseErrorf("could not parse version range %q", expr)
	}

	r := Range{Min: MinID, Max: 9999}
	for i := 0; i < len(parts); i += 2 {
		op, version := parts[i], parts[i+1]
		v, err := ParseID(version)
		if err != nil {
			return Range{}, errors.ParseErrorf("could not parse version range %q: %v", expr, err)
		}
		switch op {
		case "<", "<=":
			r.Max = v
			r.IncludeMax = op == "<="
		case ">", ">=":
			r.Min = v
			r.IncludeMin = op == ">="
		default:
			return Range{}, errors.ParseErrorf("could not parse version range %q: operator %q not supported", expr, op)
		}
	}
	if r.Min < MinID || r.Max < MinID {
		return Range{}, errors.ParseErrorf("version range %q is below the supported floor %d", expr, MinID)
	}
	return r, nil
}

// Contains reports whether the id satisfies both bounds of the range.
// Ids below MinID are invalid arguments.
func (r Range) Contains(v ID) (bool, error) {
	if v < MinID {
		return false, errors.Newf(errors.KindInvalidArgument, "invalid versionid, got %d", v)
	}
	var lower bool
	if r.IncludeMin {
		lower = v >= r.Min
	} else {
		lower = v > r.Min
	}
	maxID := r.Max
	if maxID == 0 {
		maxID = 99999
	}
	var upper bool
	if r.IncludeMax {
		upper = v <= maxID
	} else {
		upper = v < maxID
	}
	return lower && upper, nil
}

// String renders the range in the manifest expression grammar.
func (r Range) String() string {
	if r.Min == r.Max && r.IncludeMin && r.IncludeMax {
		return "==" + r.Min.String()
	}
	var sb strings.Builder
	if r.IncludeMin {
		sb.WriteString(">=")
	} else {
		sb.WriteString(">")
	}
	sb.WriteString(r.Min.String())
	if r.IncludeMax {
		sb.WriteString("<=")
	} else {
		sb.WriteString("<")
	}
	sb.WriteString(r.Max.String())
	return sb.String()
}
