// Package value models front-matter values as an explicit tagged union.
//
// A Value is immutable once built. Every consumer switches on Kind; there is
// no implicit "is this a mapping" probing of untyped data.
package value

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

// Value kinds. The zero Kind is KindUndefined, so the zero Value means
// "nothing bound".
const (
	KindUndefined Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a front-matter value.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	list []Value
	obj  *Map
}

// Undefined returns the value used for "not found".
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list value holding a copy of items.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Object returns an object value backed by m. The caller must not modify m
// afterwards. A nil map yields an empty object.
func Object(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindObject, obj: m}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is the "not found" value.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Len returns the number of items of a list or entries of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindObject:
		return v.obj.Len()
	}
	return 0
}

// Index returns the i-th list item.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// Map returns the entries of an object value, or nil.
func (v Value) Map() *Map {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Native converts v into plain Go values: map[string]any, []any, string,
// float64, bool or nil.
func (v Value) Native() any {
	switch v.kind {
	case KindUndefined, KindNull:
		return nil
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		v.obj.Range(func(k string, item Value) bool {
			out[k] = item.Native()
			return true
		})
		return out
	}
	return nil
}

// Equal reports deep equality. Object key order is not significant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindUndefined, KindNull:
		return true
	case KindString:
		return a.s == b.s
	case KindNumber:
		return a.n == b.n
	case KindBool:
		return a.b == b.b
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		equal := true
		a.obj.Range(func(k string, av Value) bool {
			bv, ok := b.obj.Get(k)
			equal = ok && Equal(av, bv)
			return equal
		})
		return equal
	}
	return false
}

// FromAny converts plain Go data (as produced by encoding/json or an MCP
// argument map) into a Value. Map keys are sorted for a stable order.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Value{kind: KindList, list: items}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromAny(t[k]))
		}
		return Object(m)
	}
	return String(fmt.Sprint(x))
}

// Map is an insertion-ordered string-keyed mapping of values.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set stores v under k, appending k to the key order if it is new.
// Only builders call Set; a Map is treated as immutable once wrapped in a Value.
func (m *Map) Set(k string, v Value) {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

// Get returns the value stored under k.
func (m *Map) Get(k string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[k]
	return v, ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(k string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.vals[k]) {
			return
		}
	}
}
