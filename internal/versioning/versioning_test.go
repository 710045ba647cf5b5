package versioning

import (
	"testing"

	"github.com/csound-plugins/risset/internal/errors"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		input   string
		want    ID
		wantErr bool
	}{
		{"6.19", 6190, false},
		{"6.19.2", 6192, false},
		{"7.0", 7000, false},
		{"7", 7000, false},
		{"6.18.9", 6189, false},
		{"6.19.2.1", 6192, false}, // extra components truncated
		{"6.x", 0, true},
		{"", 0, true},
		{"6.19.12", 0, true}, // patch must be a single digit
	}

	for _, test := range tests {
		got, err := ParseID(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("ParseID(%q): expected error, got %d", test.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseID(%q): unexpected error: %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseID(%q) = %d, want %d", test.input, got, test.want)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	// Every valid encoding must survive String -> ParseID.
	for _, id := range []ID{6000, 6180, 6192, 6999, 7000, 7101, 9999} {
		parsed, err := ParseID(id.String())
		if err != nil {
			t.Fatalf("ParseID(%q): %v", id.String(), err)
		}
		if parsed != id {
			t.Errorf("round trip of %d through %q gave %d", id, id.String(), parsed)
		}
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		expr string
		want Range
	}{
		{"==6.19", Range{Min: 6190, Max: 6190, IncludeMin: true, IncludeMax: true}},
		{">=6.18<7.0", Range{Min: 6180, Max: 7000, IncludeMin: true}},
		{">=6.18", Range{Min: 6180, Max: 9999, IncludeMin: true}},
		{"<7.0", Range{Min: 6000, Max: 7000}},
		{">6.18<=7.0", Range{Min: 6180, Max: 7000, IncludeMax: true}},
		{"", Range{Min: 6000, Max: 9999}},
		{">= 6.18 < 7.0", Range{Min: 6180, Max: 7000, IncludeMin: true}},
		// Later clauses in the same direction overwrite earlier ones.
		{">=6.17>=6.18", Range{Min: 6180, Max: 9999, IncludeMin: true}},
	}

	for _, test := range tests {
		got, err := ParseRange(test.expr)
		if err != nil {
			t.Errorf("ParseRange(%q): unexpected error: %v", test.expr, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseRange(%q) = %+v, want %+v", test.expr, got, test.want)
		}
	}
}

func TestParseRangeErrors(t *testing.T) {
	for _, expr := range []string{"6.18", "~6.18", "=>6.18", ">=abc", ">="} {
		if _, err := ParseRange(expr); err == nil {
			t.Errorf("ParseRange(%q): expected error", expr)
		} else if !errors.IsKind(err, errors.KindParse) {
			t.Errorf("ParseRange(%q): expected parse error, got %v", expr, err)
		}
	}
}

func TestRangeContains(t *testing.T) {
	tests := []struct {
		expr    string
		version ID
		want    bool
	}{
		{"==6.19", 6190, true},
		{"==6.19", 6191, false},
		{">=6.18<7.0", 6180, true},
		{">=6.18<7.0", 6999, true},
		{">=6.18<7.0", 7000, false},
		{">6.18<7.0", 6180, false},
		{">6.18<7.0", 6181, true},
		{">=6.18<=7.0", 7000, true},
		{"", 6500, true},  // open range
		{"", 6000, false}, // exclusive default lower bound
	}

	for _, test := range tests {
		r, err := ParseRange(test.expr)
		if err != nil {
			t.Fatalf("ParseRange(%q): %v", test.expr, err)
		}
		got, err := r.Contains(test.version)
		if err != nil {
			t.Fatalf("Contains(%d) on %q: %v", test.version, test.expr, err)
		}
		if got != test.want {
			t.Errorf("ParseRange(%q).Contains(%d) = %v, want %v", test.expr, test.version, got, test.want)
		}
	}
}

func TestRangeContainsInvalidVersion(t *testing.T) {
	r, err := ParseRange(">=6.18")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Contains(5000); err == nil {
		t.Error("expected invalid argument error for versionid below the floor")
	} else if !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("expected invalid argument kind, got %v", err)
	}
}

func TestTripleCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.4", -1},
		{"1.3.0", "1.2.9", 1},
		{"2.0.0", "1.9.9", 1},
		{"1.2", "1.2.0", 0},
	}

	for _, test := range tests {
		a, err := ParseTriple(test.a)
		if err != nil {
			t.Fatalf("ParseTriple(%q): %v", test.a, err)
		}
		b, err := ParseTriple(test.b)
		if err != nil {
			t.Fatalf("ParseTriple(%q): %v", test.b, err)
		}
		if got := a.Compare(b); got != test.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("6.19", "0.0.0"); got != "6.19.0" {
		t.Errorf("Normalize(6.19) = %q, want 6.19.0", got)
	}
	if got := Normalize("", "0.0.0"); got != "0.0.0" {
		t.Errorf("Normalize(empty) = %q, want 0.0.0", got)
	}
	if got := Normalize("1", "0.0.0"); got != "1.0.0" {
		t.Errorf("Normalize(1) = %q, want 1.0.0", got)
	}
}
