package value

import (
	"encoding/json"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func parseYAML(t *testing.T, src string) Value {
	t.Helper()
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(src), &n); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return FromYAML(&n)
}

func TestFromYAML_KindsAndOrder(t *testing.T) {
	v := parseYAML(t, "title: Hello\ncount: 3\ndraft: false\nnone: ~\ncreated: 2025-01-15\ntags:\n  - go\n  - yaml\nmeta:\n  owner: alice\n  z: 1\n  a: 2\n")
	if v.Kind() != KindObject {
		t.Fatalf("kind = %s", v.Kind())
	}
	want := []string{"title", "count", "draft", "none", "created", "tags", "meta"}
	keys := v.Map().Keys()
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	check := func(path string, kind Kind) Value {
		t.Helper()
		got, ok := Lookup(v, path)
		if !ok {
			t.Fatalf("%s not found", path)
		}
		if got.Kind() != kind {
			t.Errorf("%s kind = %s, want %s", path, got.Kind(), kind)
		}
		return got
	}
	if n, _ := check("count", KindNumber).AsNumber(); n != 3 {
		t.Errorf("count = %v", n)
	}
	check("draft", KindBool)
	check("none", KindNull)
	if s, _ := check("created", KindString).AsString(); s != "2025-01-15" {
		t.Errorf("created = %q", s)
	}
	if s, _ := check("tags.1", KindString).AsString(); s != "yaml" {
		t.Errorf("tags.1 = %q", s)
	}
	if got := v.Map(); got == nil {
		t.Fatal("nil map")
	}
	metaKeys := check("meta", KindObject).Map().Keys()
	if metaKeys[1] != "z" || metaKeys[2] != "a" {
		t.Errorf("meta keys = %v", metaKeys)
	}
}

func TestLookup_Misses(t *testing.T) {
	v := parseYAML(t, "title: Hello\nmeta:\n  owner: alice\ntags: [a]\n")
	for _, p := range []string{"", "missing", "title.x", "meta.nobody", "tags.5", "tags.x", "meta.owner.deeper"} {
		if _, ok := Lookup(v, p); ok {
			t.Errorf("Lookup(%q) should miss", p)
		}
	}
}

func TestWalk_PreOrderAndSeparators(t *testing.T) {
	v := parseYAML(t, "title: Hello\nmeta:\n  owner: alice\ntags: [a, b]\n")

	var paths []string
	Walk(v, "notes/a.md", "/", func(p string, _ Value) { paths = append(paths, p) })
	want := []string{
		"notes/a.md/title",
		"notes/a.md/meta",
		"notes/a.md/meta.owner",
		"notes/a.md/tags",
		"notes/a.md/tags.0",
		"notes/a.md/tags.1",
	}
	if !slices.Equal(paths, want) {
		t.Errorf("paths = %v\nwant %v", paths, want)
	}

	paths = nil
	Walk(v, "", ".", func(p string, item Value) {
		if got, ok := Lookup(v, p); !ok || !Equal(got, item) {
			t.Errorf("Lookup(%q) disagrees with Walk", p)
		}
		paths = append(paths, p)
	})
	if len(paths) != len(want) || paths[0] != "title" {
		t.Errorf("local paths = %v", paths)
	}
}

func TestParseScalar(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
	}{
		{"42", KindNumber},
		{"4.5", KindNumber},
		{"true", KindBool},
		{"null", KindNull},
		{"hello", KindString},
		{"a: b", KindString},
		{"[1, 2]", KindString},
		{"", KindString},
	}
	for _, tc := range cases {
		if got := ParseScalar(tc.in); got.Kind() != tc.kind {
			t.Errorf("ParseScalar(%q) kind = %s, want %s", tc.in, got.Kind(), tc.kind)
		}
	}
}

func TestJSON_PreservesOrder(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"z":1,"a":{"y":[true,null,"s"]},"m":2.5}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"z":1,"a":{"y":[true,null,"s"]},"m":2.5}` {
		t.Errorf("json = %s", out)
	}
}

func TestJSON_FieldAbsentIsUndefined(t *testing.T) {
	var req struct {
		Path  string `json:"path"`
		Value Value  `json:"value"`
	}
	if err := json.Unmarshal([]byte(`{"path":"title"}`), &req); err != nil {
		t.Fatal(err)
	}
	if !req.Value.IsUndefined() {
		t.Errorf("kind = %s, want undefined", req.Value.Kind())
	}
}

func TestEqual(t *testing.T) {
	a := NewMap()
	a.Set("x", Number(1))
	a.Set("y", String("s"))
	b := NewMap()
	b.Set("y", String("s"))
	b.Set("x", Number(1))
	if !Equal(Object(a), Object(b)) {
		t.Error("objects with same entries should be equal")
	}
	if Equal(String("1"), Number(1)) {
		t.Error("string and number must differ")
	}
	if Equal(List(Number(1)), List(Number(1), Number(2))) {
		t.Error("lists of different length must differ")
	}
}

func TestFromAny(t *testing.T) {
	v := FromAny(map[string]any{"b": []any{1.0, "x"}, "a": nil, "c": true})
	if got := Display(v); got != `{"a":null,"b":[1,"x"],"c":true}` {
		t.Errorf("FromAny = %s", got)
	}
}
