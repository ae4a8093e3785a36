// Package frontmatter reads and edits the YAML front-matter block at the
// start of a Markdown document.
//
// A block opens with a Marker line as the very first line of the document
// and closes with the next line that holds only the Marker. Edits are made
// on the raw text between the two marker lines so keys that are not touched
// keep their formatting, comments and order.
package frontmatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/livevars/internal/value"
)

// Marker delimits the front-matter block.
const Marker = "---"

// span locates a block inside a document.
//
// For a closed block, raw[start:end] is the block text: empty, or a run of
// complete lines each ending in '\n'. raw[end:] starts with the closing
// marker line. openEnd is the offset just past the opening marker text
// (before its line break).
type span struct {
	openEnd int
	start   int
	end     int
	closed  bool
}

// locate finds the block in raw. ok is false when the document does not
// start with a marker line.
func locate(raw string) (sp span, ok bool) {
	first, _, hasNL := strings.Cut(raw, "\n")
	if !isMarkerLine(first) {
		return span{}, false
	}
	sp.openEnd = len(first)
	if !hasNL {
		return sp, true
	}
	sp.start = len(first) + 1
	pos := sp.start
	for {
		nl := strings.IndexByte(raw[pos:], '\n')
		line := raw[pos:]
		if nl >= 0 {
			line = raw[pos : pos+nl]
		}
		if isMarkerLine(line) {
			sp.end = pos
			sp.closed = true
			return sp, true
		}
		if nl < 0 {
			return sp, true
		}
		pos += nl + 1
	}
}

func isMarkerLine(line string) bool {
	return strings.TrimRight(line, " \t\r") == Marker
}

// Split separates the front-matter block text from the document body.
// ok is false when the document has no well-formed block, in which case
// body is the whole document.
func Split(raw string) (block, body string, ok bool) {
	sp, found := locate(raw)
	if !found || !sp.closed {
		return "", raw, false
	}
	rest := raw[sp.end:]
	// Skip the closing marker line.
	if _, after, hasNL := strings.Cut(rest, "\n"); hasNL {
		rest = after
	} else {
		rest = ""
	}
	return raw[sp.start:sp.end], strings.TrimLeft(rest, "\r\n"), true
}

// Parse returns the document's front matter as an ordered mapping. A
// document without a block, or whose block is not a YAML mapping, yields an
// empty mapping.
func Parse(raw []byte) *value.Map {
	block, _, ok := Split(string(raw))
	if !ok || strings.TrimSpace(block) == "" {
		return value.NewMap()
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
		// Invalid YAML behaves like no front matter at all.
		return value.NewMap()
	}
	v := value.FromYAML(&doc)
	if m := v.Map(); m != nil {
		return m
	}
	return value.NewMap()
}
