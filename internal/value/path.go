package value

import (
	"strconv"
	"strings"
)

// Lookup walks a dotted path ("meta.owner", "tags.0") from root. It stops at
// the first segment that is absent or that would descend into a scalar.
func Lookup(root Value, path string) (Value, bool) {
	if path == "" {
		return Value{}, false
	}
	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case KindObject:
			next, ok := cur.obj.Get(seg)
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindList:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return Value{}, false
			}
			next, ok := cur.Index(i)
			if !ok {
				return Value{}, false
			}
			cur = next
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Walk calls fn for every entry below v in pre-order, containers before
// their contents. sep joins the first level to prefix; deeper levels are
// joined with '.'.
func Walk(v Value, prefix, sep string, fn func(path string, item Value)) {
	visit := func(key string, item Value) {
		p := key
		if prefix != "" {
			p = prefix + sep + key
		}
		fn(p, item)
		Walk(item, p, ".", fn)
	}
	switch v.kind {
	case KindObject:
		v.obj.Range(func(k string, item Value) bool {
			visit(k, item)
			return true
		})
	case KindList:
		for i := 0; i < v.Len(); i++ {
			item, _ := v.Index(i)
			visit(strconv.Itoa(i), item)
		}
	case KindUndefined, KindNull, KindString, KindNumber, KindBool:
	}
}
