// Package docs works with plugin documentation: parsing opcode man
// pages, rendering them to html and assembling the documentation site.
package docs

import (
	"os"
	"regexp"
	"strings"

	"github.com/csound-plugins/risset/internal/errors"
)

// ManPage is the parsed form of an opcode man page.
type ManPage struct {
	Syntaxes []string
	Abstract string
}

var (
	syntaxHeadingRe = regexp.MustCompile(`^\s*#+\s+[sS]yntax\s*$`)
	syntaxStopRe    = regexp.MustCompile(`^\s*[#!;/]`)
	syntaxLineRe    = regexp.MustCompile(`^\s*[akigS\[x]`)
)

// ParseManpage reads and parses the man page of an opcode.
func ParseManpage(path, opcode string) (*ManPage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "could not read man page %s", path)
	}
	return ParseManpageText(string(data), opcode), nil
}

// ParseManpageText extracts the abstract and the syntax lines for an
// opcode from its markdown man page. Parsing is best effort: missing
// sections leave the corresponding field empty.
func ParseManpageText(text, opcode string) *ManPage {
	lines := strings.Split(text, "\n")
	return &ManPage{
		Syntaxes: parseSyntaxes(lines, opcode),
		Abstract: parseAbstract(lines, text, opcode),
	}
}

// parseSyntaxes collects the signature lines under the Syntax heading,
// up to the next heading or comment.
func parseSyntaxes(lines []string, opcode string) []string {
	start := -1
	for n, line := range lines {
		if syntaxHeadingRe.MatchString(line) {
			start = n + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	var syntaxes []string
	for _, line := range lines[start:] {
		if syntaxStopRe.MatchString(line) {
			break
		}
		if !strings.Contains(line, opcode) {
			continue
		}
		if !syntaxLineRe.MatchString(line) && !strings.HasPrefix(strings.TrimLeft(line, " \t"), opcode) {
			continue
		}
		syntax := strings.TrimSpace(line)
		if k := strings.Index(syntax, ";"); k >= 0 {
			syntax = strings.TrimSpace(syntax[:k])
		}
		syntaxes = append(syntaxes, syntax)
	}
	return syntaxes
}

// parseAbstract returns the first paragraph after the Abstract heading,
// or after the title when the page carries no Abstract heading.
func parseAbstract(lines []string, text, opcode string) string {
	if strings.Contains(text, "# Abstract") {
		start := 0
		for n, line := range lines {
			if strings.Contains(line, "# Abstract") {
				start = n + 1
				break
			}
		}
		return firstParagraphLine(lines[start:])
	}

	// Without an Abstract heading the abstract is the text between the
	// title and the first tag, provided the title names the opcode.
	for n, line := range lines {
		title := strings.TrimSpace(line)
		if title == "" {
			continue
		}
		if !strings.HasPrefix(title, "#") {
			return ""
		}
		fields := strings.Fields(title)
		if len(fields) == 0 || fields[len(fields)-1] != opcode {
			return ""
		}
		return firstParagraphLine(lines[n+1:])
	}
	return ""
}

func firstParagraphLine(lines []string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return ""
		}
		return line
	}
	return ""
}
