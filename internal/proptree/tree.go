// Package proptree builds the property tree: a snapshot of every document's
// front matter arranged by the vault's folder hierarchy.
//
// Folders become branches and documents become leaves holding their parsed
// front matter. A tree is immutable; a refresh builds a new one.
package proptree

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/value"
)

// Source enumerates the vault and supplies parsed front matter.
type Source interface {
	// ListTree returns every entry under the vault root in discovery order.
	ListTree() ([]models.TreeEntry, error)
	// Snapshot returns the parsed front matter of the document id.
	Snapshot(id string) (*value.Map, error)
}

// Options controls what Build includes.
type Options struct {
	// ReservedDirs are directory name prefixes skipped with their contents.
	ReservedDirs []string
	// Extensions are the file extensions treated as documents.
	Extensions []string
	// OnError is told about documents whose snapshot failed. May be nil.
	OnError func(id string, err error)
}

// Default option values.
var (
	DefaultReservedDirs = []string{".obsidian", ".git"}
	DefaultExtensions   = []string{".md"}
)

func (o Options) withDefaults() Options {
	if o.ReservedDirs == nil {
		o.ReservedDirs = DefaultReservedDirs
	}
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	return o
}

// Node is a branch (folder) or a leaf (document).
type Node struct {
	leaf     bool
	props    *value.Map
	names    []string
	children map[string]*Node
}

func newBranch() *Node {
	return &Node{children: make(map[string]*Node)}
}

func newLeaf(props *value.Map) *Node {
	if props == nil {
		props = value.NewMap()
	}
	return &Node{leaf: true, props: props}
}

// IsLeaf reports whether n is a document.
func (n *Node) IsLeaf() bool { return n != nil && n.leaf }

// Properties returns a leaf's front matter, or nil for a branch.
func (n *Node) Properties() *value.Map {
	if !n.IsLeaf() {
		return nil
	}
	return n.props
}

// Names returns a branch's child names in discovery order.
func (n *Node) Names() []string {
	if n == nil || n.leaf {
		return nil
	}
	out := make([]string, len(n.names))
	copy(out, n.names)
	return out
}

// Child returns the named child of a branch.
func (n *Node) Child(name string) *Node {
	if n == nil || n.leaf {
		return nil
	}
	return n.children[name]
}

// Len returns the number of children of a branch.
func (n *Node) Len() int {
	if n == nil || n.leaf {
		return 0
	}
	return len(n.names)
}

func (n *Node) add(name string, child *Node) {
	if _, ok := n.children[name]; !ok {
		n.names = append(n.names, name)
	}
	n.children[name] = child
}

// branch returns the child branch called name, creating it if needed. It
// returns nil when name is already taken by a leaf.
func (n *Node) branch(name string) *Node {
	if c, ok := n.children[name]; ok {
		if c.leaf {
			return nil
		}
		return c
	}
	c := newBranch()
	n.add(name, c)
	return c
}

// Build enumerates src and returns the root branch of a new tree.
//
// Only a failing enumeration fails the build. A document whose snapshot
// cannot be read becomes an empty leaf and is reported to opts.OnError.
func Build(src Source, opts Options) (*Node, error) {
	opts = opts.withDefaults()
	entries, err := src.ListTree()
	if err != nil {
		return nil, fmt.Errorf("proptree: list tree: %w", err)
	}
	root := newBranch()
	for _, e := range entries {
		rel := strings.Trim(path.Clean(e.Path), "/")
		if rel == "" || rel == "." || Reserved(rel, opts.ReservedDirs) {
			continue
		}
		segs := strings.Split(rel, "/")
		parent := root
		for _, s := range segs[:len(segs)-1] {
			if parent = parent.branch(s); parent == nil {
				break
			}
		}
		if parent == nil {
			continue
		}
		name := segs[len(segs)-1]
		if e.IsDir {
			parent.branch(name)
			continue
		}
		if !IsDocument(name, opts.Extensions) {
			continue
		}
		props, err := src.Snapshot(rel)
		if err != nil {
			if opts.OnError != nil {
				opts.OnError(rel, err)
			}
			props = nil
		}
		parent.add(name, newLeaf(props))
	}
	return root, nil
}

// Reserved reports whether any directory segment of rel starts with one of
// the reserved prefixes.
func Reserved(rel string, reserved []string) bool {
	segs := strings.Split(rel, "/")
	for _, s := range segs {
		for _, r := range reserved {
			if r != "" && strings.HasPrefix(s, r) {
				return true
			}
		}
	}
	return false
}

// IsDocument reports whether name carries one of the document extensions.
func IsDocument(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Localize walks the '/'-separated documentID from root. It returns nil when
// any segment is absent.
func Localize(root *Node, documentID string) *Node {
	id := strings.Trim(documentID, "/")
	if id == "" {
		return nil
	}
	cur := root
	for _, s := range strings.Split(id, "/") {
		if cur = cur.Child(s); cur == nil {
			return nil
		}
	}
	return cur
}

// Document returns the front matter of documentID, when it names a leaf.
func Document(root *Node, documentID string) (*value.Map, bool) {
	n := Localize(root, documentID)
	if !n.IsLeaf() {
		return nil, false
	}
	return n.props, true
}
