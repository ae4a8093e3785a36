// Package render finds variable references in document text and replaces
// them with resolved values, either in the Markdown source or in the HTML
// produced from it.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/starford/livevars/internal/frontmatter"
	"github.com/starford/livevars/internal/value"
)

// Default delimiters.
const (
	DefaultOpen  = "{{"
	DefaultClose = "}}"
)

// HighlightClass is the class of the span wrapping a substituted value.
const HighlightClass = "dynamic-variable"

// LookupFunc resolves a reference path.
type LookupFunc func(path string) (value.Value, bool)

// Reference is one delimited reference in a text. Start and End are byte
// offsets of the whole reference including delimiters.
type Reference struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Scanner matches references written between an opening and a closing
// delimiter.
type Scanner struct {
	open, close string
	source      *regexp.Regexp
	markup      *regexp.Regexp
}

// NewScanner builds a scanner for the given delimiters.
func NewScanner(open, close string) (*Scanner, error) {
	if open == "" || close == "" {
		return nil, errors.New("render: delimiters must not be empty")
	}
	o, c := regexp.QuoteMeta(open), regexp.QuoteMeta(close)
	return &Scanner{
		open:   open,
		close:  close,
		source: regexp.MustCompile(o + `(.*?)` + c),
		// In rendered HTML a reference never spans a tag.
		markup: regexp.MustCompile(regexp.QuoteMeta(html.EscapeString(open)) + `([^<>]*?)` + regexp.QuoteMeta(html.EscapeString(close))),
	}, nil
}

// Delimiters returns the opening and closing delimiters.
func (s *Scanner) Delimiters() (open, close string) { return s.open, s.close }

// Syntax returns how a reference to path is written.
func (s *Scanner) Syntax(path string) string { return s.open + path + s.close }

func cleanPath(raw string) string { return strings.TrimSpace(raw) }

// References lists the references in text in order of appearance.
func (s *Scanner) References(text string) []Reference {
	var out []Reference
	for _, m := range s.source.FindAllStringSubmatchIndex(text, -1) {
		p := cleanPath(text[m[2]:m[3]])
		if p == "" {
			continue
		}
		out = append(out, Reference{Path: p, Start: m[0], End: m[1]})
	}
	return out
}

// Substitute replaces every resolvable reference in text with the display
// form of its value. Unresolved references are left intact.
func (s *Scanner) Substitute(text string, lookup LookupFunc) string {
	return s.source.ReplaceAllStringFunc(text, func(match string) string {
		p := cleanPath(match[len(s.open) : len(match)-len(s.close)])
		v, ok := lookup(p)
		if p == "" || !ok {
			return match
		}
		return value.Display(v)
	})
}

var (
	markdownOnce sync.Once
	markdown     goldmark.Markdown
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdown
}

// HTML renders the document body (front matter excluded) to HTML and
// substitutes references in the output. Values are HTML-escaped; with
// highlight set each is wrapped in a span carrying the reference path.
func (s *Scanner) HTML(raw string, lookup LookupFunc, highlight bool) (string, error) {
	body := raw
	if _, b, ok := frontmatter.Split(raw); ok {
		body = b
	}
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	out := s.markup.ReplaceAllStringFunc(buf.String(), func(match string) string {
		sub := s.markup.FindStringSubmatch(match)
		p := cleanPath(html.UnescapeString(sub[1]))
		v, ok := lookup(p)
		if p == "" || !ok {
			return match
		}
		text := html.EscapeString(value.Display(v))
		if !highlight {
			return text
		}
		return fmt.Sprintf(`<span class="%s" data-variable="%s">%s</span>`, HighlightClass, html.EscapeString(p), text)
	})
	return out, nil
}
