package proptree

import (
	"github.com/starford/livevars/internal/value"
)

// Path separators.
const (
	GlobalSep = "/"
	LocalSep  = "."
)

// FlattenPaths lists every addressable path below n in pre-order, including
// intermediate ones.
//
// With local set, every segment is joined with '.'. Otherwise folder,
// document and top-level key boundaries use '/', and nesting inside a
// document's front matter below its top level uses '.':
//
//	notes/a.md
//	notes/a.md/meta
//	notes/a.md/meta.owner
func FlattenPaths(n *Node, prefix string, local bool) []string {
	var out []string
	if n == nil {
		return out
	}
	sep := GlobalSep
	if local {
		sep = LocalSep
	}
	if n.leaf {
		value.Walk(value.Object(n.props), prefix, sep, func(p string, _ value.Value) {
			out = append(out, p)
		})
		return out
	}
	for _, name := range n.names {
		p := join(prefix, sep, name)
		out = append(out, p)
		out = append(out, FlattenPaths(n.children[name], p, local)...)
	}
	return out
}

func join(prefix, sep, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + sep + name
}
