package value

import (
	"gopkg.in/yaml.v3"
)

// maxDepth bounds alias expansion so a self-referencing anchor cannot recurse forever.
const maxDepth = 64

// FromYAML converts a decoded YAML node into a Value, keeping mapping key order.
func FromYAML(n *yaml.Node) Value {
	return fromYAML(n, 0)
}

func fromYAML(n *yaml.Node, depth int) Value {
	if n == nil || depth > maxDepth {
		return Value{}
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null()
		}
		return fromYAML(n.Content[0], depth+1)
	case yaml.AliasNode:
		return fromYAML(n.Alias, depth+1)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			m.Set(n.Content[i].Value, fromYAML(n.Content[i+1], depth+1))
		}
		return Object(m)
	case yaml.SequenceNode:
		items := make([]Value, len(n.Content))
		for i, c := range n.Content {
			items[i] = fromYAML(c, depth+1)
		}
		return Value{kind: KindList, list: items}
	case yaml.ScalarNode:
		return fromScalar(n)
	}
	return Value{}
}

func fromScalar(n *yaml.Node) Value {
	switch n.ShortTag() {
	case "!!null":
		return Null()
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			return Bool(b)
		}
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err == nil {
			return Number(f)
		}
	}
	// Timestamps and unknown tags keep their literal text.
	return String(n.Value)
}

// ParseScalar interprets user input the way a YAML front-matter reader
// would: "42" is a number, "true" a bool, "null" null, anything else a
// string. Input that is not a single scalar stays a string.
func ParseScalar(s string) Value {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return String(s)
	}
	if len(doc.Content) == 0 {
		return String(s)
	}
	n := doc.Content[0]
	if n.Kind != yaml.ScalarNode {
		return String(s)
	}
	return fromScalar(n)
}

// readsAsPlainString reports whether s, written unquoted as a YAML value,
// would be read back as exactly the string s.
func readsAsPlainString(s string) bool {
	if s == "" {
		return false
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return false
	}
	if len(doc.Content) != 1 {
		return false
	}
	n := doc.Content[0]
	return n.Kind == yaml.ScalarNode && n.Style == 0 && n.ShortTag() == "!!str" && n.Value == s
}
