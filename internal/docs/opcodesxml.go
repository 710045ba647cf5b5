package docs

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/csound-plugins/risset/internal/logfields"
)

// GenerateOpcodesXML renders an xml summary of all opcodes following
// the scheme of the csound manual's opcodes.xml, so frontends can offer
// inline help for plugin opcodes. The opcodes of each plugin are
// grouped under one category. Opcodes without a man page or without a
// parsed syntax are skipped.
func GenerateOpcodesXML(plugins []PluginDocs) string {
	var b strings.Builder
	line := func(indent int, s string) {
		b.WriteString(strings.Repeat("  ", indent))
		b.WriteString(s)
		b.WriteByte('\n')
	}
	line(0, `<?xml version="1.0" encoding="UTF-8"?>`)
	line(0, "<opcodes>")
	for i := range plugins {
		p := &plugins[i]
		line(1, fmt.Sprintf(`<category name="External Plugin:%s">`, xmlEscape(p.Name)))
		for _, opcode := range p.Opcodes {
			page, ok := p.Manpage(opcode)
			if !ok {
				slog.Error("no man page found for opcode, skipping", logfields.Opcode(opcode))
				continue
			}
			man, err := ParseManpage(page, opcode)
			if err != nil {
				slog.Error("could not parse the man page", logfields.Opcode(opcode), logfields.Error(err))
				continue
			}
			if len(man.Syntaxes) == 0 {
				slog.Error("no syntaxes found for opcode, skipping", logfields.Opcode(opcode))
				continue
			}
			line(2, fmt.Sprintf(`<opcode name="%s">`, xmlEscape(opcode)))
			line(3, "<desc>"+xmlEscape(man.Abstract)+"</desc>")
			for _, syntax := range man.Syntaxes {
				escaped := xmlEscape(syntax)
				escaped = strings.ReplaceAll(escaped, opcode, "<opcodename>"+opcode+"</opcodename>")
				line(3, "<synopsis>"+escaped+"</synopsis>")
			}
			line(2, "</opcode>")
		}
		line(1, "</category>")
	}
	line(0, "</opcodes>")
	return b.String()
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
