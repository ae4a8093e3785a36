package frontmatter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/livevars/internal/apperr"
	"github.com/starford/livevars/internal/value"
)

// childIndent is used for nested keys when the parent has no children yet.
const childIndent = "  "

// Patch returns raw with the front-matter property at path set to v.
//
// path is either a top-level key ("title") or one level of nesting
// ("meta.owner"). Deeper paths are rejected with apperr.ErrInvalidPath.
// Only the block text changes; the document body and every line of the
// block that does not hold the edited key are preserved byte for byte.
func Patch(raw, path string, v value.Value) (string, error) {
	parent, child, err := SplitKey(path)
	if err != nil {
		return "", err
	}
	lit := value.ForStorage(v)
	eol := lineEnding(raw)

	sp, ok := locate(raw)
	if !ok {
		return synthesize(parent, child, lit, eol) + raw, nil
	}
	if !sp.closed {
		// Unterminated block: drop the opening marker and rebuild around the rest.
		return synthesize(parent, child, lit, eol) + raw[sp.openEnd:], nil
	}

	block := raw[sp.start:sp.end]
	if child == "" {
		block = setFlat(block, parent, lit, eol)
	} else {
		block, err = setNested(block, parent, child, lit, eol)
		if err != nil {
			return "", err
		}
	}
	return raw[:sp.start] + block + raw[sp.end:], nil
}

// SplitKey validates a writable property path and splits it into its
// top-level key and optional child key.
func SplitKey(path string) (parent, child string, err error) {
	segs := strings.Split(path, ".")
	if len(segs) > 2 {
		return "", "", fmt.Errorf("%w: %q nests deeper than one level", apperr.ErrInvalidPath, path)
	}
	for _, s := range segs {
		if !validKey(s) {
			return "", "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, path)
		}
	}
	parent = segs[0]
	if len(segs) == 2 {
		child = segs[1]
	}
	return parent, child, nil
}

// validKey accepts keys that can be written as a plain YAML mapping key.
func validKey(k string) bool {
	if k == "" || strings.TrimSpace(k) != k {
		return false
	}
	if strings.ContainsAny(k, ":#\n\r\t") {
		return false
	}
	switch k[0] {
	case '-', '?', '[', ']', '{', '}', '&', '*', '!', '|', '>', '\'', '"', '%', '@', '`', ',':
		return false
	}
	return true
}

func lineEnding(raw string) string {
	if i := strings.IndexByte(raw, '\n'); i > 0 && raw[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

func synthesize(parent, child, lit, eol string) string {
	var b strings.Builder
	b.WriteString(Marker + eol)
	if child == "" {
		b.WriteString(parent + ": " + lit + eol)
	} else {
		b.WriteString(parent + ":" + eol)
		b.WriteString(childIndent + child + ": " + lit + eol)
	}
	b.WriteString(Marker + eol + eol)
	return b.String()
}

// keyLine matches a top-level "key: ..." line; group 1 is the text after the colon.
func keyLine(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `[ \t]*:([^\r\n]*)`)
}

func setFlat(block, key, lit, eol string) string {
	line := key + ": " + lit
	if loc := keyLine(key).FindStringIndex(block); loc != nil {
		next := nextLine(block, loc[1])
		end := valueEnd(block, next, "")
		return block[:loc[0]] + line + block[loc[1]:next] + block[end:]
	}
	return appendLines(block, eol, line)
}

func setNested(block, parent, child, lit, eol string) (string, error) {
	childLine := child + ": " + lit
	loc := keyLine(parent).FindStringSubmatchIndex(block)
	if loc == nil {
		return appendLines(block, eol, parent+":", childIndent+childLine), nil
	}
	parentEnd := loc[1]
	regionStart := nextLine(block, parentEnd)
	brk := block[parentEnd:regionStart]
	if brk == "" {
		brk = eol
	}

	if scalarText(block[loc[2]:loc[3]]) != "" {
		// The parent held a scalar: it becomes a mapping and the scalar,
		// continuation lines included, is dropped.
		end := valueEnd(block, regionStart, "")
		return block[:loc[0]] + parent + ":" + brk + childIndent + childLine + eol + block[end:], nil
	}

	if holdsList(block, regionStart) {
		return "", fmt.Errorf("%w: %q holds a list", apperr.ErrInvalidPath, parent)
	}

	regionEnd := indentedRegionEnd(block, regionStart)
	indent := firstIndent(block[regionStart:regionEnd])
	if indent != "" {
		childRe := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(indent) + regexp.QuoteMeta(child) + `[ \t]*:[^\r\n]*`)
		if m := childRe.FindStringIndex(block[regionStart:regionEnd]); m != nil {
			s, e := regionStart+m[0], regionStart+m[1]
			next := nextLine(block, e)
			end := valueEnd(block, next, indent)
			return block[:s] + indent + childLine + block[e:next] + block[end:], nil
		}
	} else {
		indent = childIndent
	}

	return block[:parentEnd] + brk + indent + childLine + eol + block[regionStart:], nil
}

// nextLine returns the offset of the line following the one containing pos.
func nextLine(s string, pos int) int {
	if i := strings.IndexByte(s[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(s)
}

// indentedRegionEnd returns the end of the run of blank or indented lines
// starting at start.
func indentedRegionEnd(s string, start int) int {
	pos := start
	for pos < len(s) {
		end := nextLine(s, pos)
		line := strings.TrimRight(s[pos:end], "\r\n")
		if strings.TrimSpace(line) != "" && line[0] != ' ' && line[0] != '\t' {
			return pos
		}
		pos = end
	}
	return pos
}

// valueEnd returns the end of the lines from start that continue the value
// of a key indented by indent: deeper lines, and sequence items at the same
// indent. Trailing blank lines are not part of the value.
func valueEnd(s string, start int, indent string) int {
	end, pos := start, start
	for pos < len(s) {
		next := nextLine(s, pos)
		line := strings.TrimRight(s[pos:next], "\r\n")
		trimmed := strings.TrimLeft(line, " \t")
		depth := len(line) - len(trimmed)
		switch {
		case trimmed == "":
		case depth > len(indent):
			end = next
		case depth == len(indent) && (trimmed == "-" || strings.HasPrefix(trimmed, "- ")):
			end = next
		default:
			return end
		}
		pos = next
	}
	return end
}

// firstIndent returns the leading whitespace of the first non-blank line.
func firstIndent(region string) string {
	for _, line := range strings.Split(region, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	}
	return ""
}

// holdsList reports whether the first non-blank line from start is a
// sequence item, indented or not.
func holdsList(s string, start int) bool {
	pos := start
	for pos < len(s) {
		end := nextLine(s, pos)
		line := strings.TrimSpace(s[pos:end])
		if line != "" {
			return line == "-" || strings.HasPrefix(line, "- ")
		}
		pos = end
	}
	return false
}

// scalarText returns the value written after a key's colon, without a
// trailing comment.
func scalarText(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return ""
	}
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func appendLines(block, eol string, lines ...string) string {
	var b strings.Builder
	b.WriteString(block)
	if block != "" && !strings.HasSuffix(block, "\n") {
		b.WriteString(eol)
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(eol)
	}
	return b.String()
}
