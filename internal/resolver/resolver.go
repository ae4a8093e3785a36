// Package resolver answers variable lookups against a property tree.
//
// A path is either local ("title", "meta.owner"), resolved in the current
// document, or global ("notes/a.md/title"), naming its document explicitly.
// Overrides always win over the tree.
package resolver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/proptree"
	"github.com/starford/livevars/internal/value"
)

// NoValue is shown in place of a path that does not resolve.
const NoValue = "no value"

// Scope selects which paths a search covers.
type Scope int

const (
	// ScopeLocal covers the current document's dotted keys.
	ScopeLocal Scope = iota
	// ScopeAll covers local keys followed by every global path.
	ScopeAll
)

func (s Scope) String() string {
	if s == ScopeAll {
		return "all"
	}
	return "local"
}

// ParseScope accepts "local" (or empty) and "all".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return ScopeLocal, nil
	case "all", "global":
		return ScopeAll, nil
	}
	return ScopeLocal, fmt.Errorf("resolver: unknown scope %q", s)
}

// Resolver is a read-only view over one tree snapshot and a shared
// override store. It is safe for concurrent use.
type Resolver struct {
	root      *proptree.Node
	overrides *Overrides
	exts      []string

	globalOnce sync.Once
	global     []string
}

// New returns a resolver over root. exts are the document extensions used
// to split global paths; nil means proptree.DefaultExtensions.
func New(root *proptree.Node, overrides *Overrides, exts []string) *Resolver {
	if len(exts) == 0 {
		exts = proptree.DefaultExtensions
	}
	return &Resolver{root: root, overrides: overrides, exts: exts}
}

// Root returns the tree snapshot the resolver reads.
func (r *Resolver) Root() *proptree.Node { return r.root }

// Resolve returns the value bound to path as seen from currentDoc.
func (r *Resolver) Resolve(path, currentDoc string) (value.Value, bool) {
	if o, ok := r.overrides.Get(path); ok {
		return o.Value, true
	}
	return r.Lookup(path, currentDoc)
}

// Lookup resolves path against the tree only, ignoring overrides.
func (r *Resolver) Lookup(path, currentDoc string) (value.Value, bool) {
	if strings.Contains(path, proptree.GlobalSep) {
		doc, local := SplitGlobal(path, r.exts)
		return r.lookupIn(doc, local)
	}
	if currentDoc == "" {
		return value.Undefined(), false
	}
	return r.lookupIn(currentDoc, path)
}

func (r *Resolver) lookupIn(doc, local string) (value.Value, bool) {
	props, ok := proptree.Document(r.root, doc)
	if !ok {
		return value.Undefined(), false
	}
	return value.Lookup(value.Object(props), local)
}

// SplitGlobal splits a global path into its document id and local path.
// The split happens at the first '/' that follows a document extension, so
// documents inside folders can be addressed; without one it falls back to
// the first '/'.
func SplitGlobal(path string, exts []string) (doc, local string) {
	for i := 0; i < len(path); i++ {
		if path[i] != '/' {
			continue
		}
		if proptree.IsDocument(path[:i], exts) {
			return path[:i], path[i+1:]
		}
	}
	doc, local, _ = strings.Cut(path, proptree.GlobalSep)
	return doc, local
}

// LocalPaths lists the dotted keys of doc.
func (r *Resolver) LocalPaths(doc string) []string {
	if doc == "" {
		return nil
	}
	n := proptree.Localize(r.root, doc)
	if !n.IsLeaf() {
		return nil
	}
	return proptree.FlattenPaths(n, "", true)
}

// GlobalPaths lists every path in the tree. The result is shared; callers
// must not modify it.
func (r *Resolver) GlobalPaths() []string {
	r.globalOnce.Do(func() {
		r.global = proptree.FlattenPaths(r.root, "", false)
	})
	return r.global
}

// Paths returns the unfiltered path list for scope.
func (r *Resolver) Paths(scope Scope, doc string) []string {
	local := r.LocalPaths(doc)
	if scope == ScopeLocal {
		return local
	}
	global := r.GlobalPaths()
	out := make([]string, 0, len(local)+len(global))
	out = append(out, local...)
	return append(out, global...)
}

// FindPathsContaining returns the paths in scope that contain q. An empty
// q returns every path. Matching is case-sensitive.
func (r *Resolver) FindPathsContaining(q string, scope Scope, doc string) []string {
	return filter(r.Paths(scope, doc), q, strings.Contains)
}

// FindPathsStartingWith returns the paths in scope that start with q.
func (r *Resolver) FindPathsStartingWith(q string, scope Scope, doc string) []string {
	return filter(r.Paths(scope, doc), q, strings.HasPrefix)
}

func filter(paths []string, q string, match func(s, q string) bool) []string {
	if q == "" {
		return paths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if match(p, q) {
			out = append(out, p)
		}
	}
	return out
}

// Properties lists the paths in scope containing q together with their
// display values truncated to maxLen runes.
func (r *Resolver) Properties(q string, scope Scope, doc string, maxLen int) []models.Property {
	paths := r.FindPathsContaining(q, scope, doc)
	out := make([]models.Property, 0, len(paths))
	for _, p := range paths {
		v, ok := r.Resolve(p, doc)
		prop := models.Property{Path: p, Kind: v.Kind().String(), Resolved: ok}
		if ok {
			prop.Value = value.DisplayString(v, maxLen)
		} else {
			prop.Value = NoValue
		}
		out = append(out, prop)
	}
	return out
}

// Preview returns the display string for path, or NoValue.
func (r *Resolver) Preview(path, doc string, maxLen int) string {
	v, ok := r.Resolve(path, doc)
	if !ok {
		return NoValue
	}
	return value.DisplayString(v, maxLen)
}
