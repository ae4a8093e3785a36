// Package diff computes line diffs between two versions of a document.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Line is one line of a diff.
type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Hunk is a run of changed lines with surrounding context.
type Hunk struct {
	Lines []Line `json:"lines"`
}

// Line types.
const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// DefaultContext is the number of unchanged lines kept around a change.
const DefaultContext = 2

// Lines returns the full line-by-line diff of before and after.
func Lines(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []Line
	oldLine := 1
	newLine := 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// Hunks groups the changed lines of before → after, keeping up to context
// unchanged lines on each side. Identical inputs yield no hunks.
func Hunks(before, after string, context int) []Hunk {
	if context < 0 {
		context = DefaultContext
	}
	lines := Lines(before, after)

	var hunks []Hunk
	start, end := -1, -1
	flush := func() {
		if start >= 0 {
			hunks = append(hunks, Hunk{Lines: lines[start:end]})
		}
		start, end = -1, -1
	}
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		lo := max(i-context, 0)
		hi := min(i+context+1, len(lines))
		if start >= 0 && lo > end {
			flush()
		}
		if start < 0 {
			start = lo
		}
		end = max(end, hi)
	}
	flush()
	return hunks
}

// Unified renders hunks as text, prefixing lines with ' ', '+' or '-'.
func Unified(hunks []Hunk) string {
	var b strings.Builder
	for i, h := range hunks {
		if i > 0 {
			b.WriteString("...\n")
		}
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				b.WriteByte('+')
			case LineRemoved:
				b.WriteByte('-')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
