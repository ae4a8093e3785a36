package resolver

import (
	"reflect"
	"sync"
	"testing"

	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/proptree"
	"github.com/starford/livevars/internal/value"
)

type memSource map[string]*value.Map

func (m memSource) ListTree() ([]models.TreeEntry, error) {
	return []models.TreeEntry{
		{Path: "home.md"},
		{Path: "notes", IsDir: true},
		{Path: "notes/a.md"},
	}, nil
}

func (m memSource) Snapshot(id string) (*value.Map, error) { return m[id], nil }

func newTestResolver(t *testing.T, ov *Overrides) *Resolver {
	t.Helper()
	home := value.NewMap()
	home.Set("title", value.String("Home"))
	home.Set("count", value.Number(2))
	meta := value.NewMap()
	meta.Set("owner", value.String("alice"))
	home.Set("meta", value.Object(meta))
	home.Set("tags", value.List(value.String("go")))

	a := value.NewMap()
	a.Set("title", value.String("Note A"))
	a.Set("status", value.Null())

	root, err := proptree.Build(memSource{"home.md": home, "notes/a.md": a}, proptree.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if ov == nil {
		ov = NewOverrides()
	}
	return New(root, ov, nil)
}

func TestResolve_Local(t *testing.T) {
	r := newTestResolver(t, nil)
	cases := []struct {
		path string
		want string
	}{
		{"title", "Home"},
		{"count", "2"},
		{"meta.owner", "alice"},
		{"tags.0", "go"},
	}
	for _, tc := range cases {
		v, ok := r.Resolve(tc.path, "home.md")
		if !ok {
			t.Errorf("Resolve(%q) not found", tc.path)
			continue
		}
		if got := value.Display(v); got != tc.want {
			t.Errorf("Resolve(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := newTestResolver(t, nil)
	cases := []struct {
		path, doc string
	}{
		{"missing", "home.md"},
		{"title", ""},
		{"title.deeper", "home.md"},
		{"meta.nobody", "home.md"},
		{"title", "nope.md"},
		{"nope.md/title", "home.md"},
		{"notes/a.md/missing", ""},
		{"notes/title", ""},
	}
	for _, tc := range cases {
		if v, ok := r.Resolve(tc.path, tc.doc); ok || !v.IsUndefined() {
			t.Errorf("Resolve(%q, %q) = %v, want not found", tc.path, tc.doc, value.Display(v))
		}
	}
}

func TestResolve_NullIsFound(t *testing.T) {
	r := newTestResolver(t, nil)
	v, ok := r.Resolve("status", "notes/a.md")
	if !ok || v.Kind() != value.KindNull {
		t.Errorf("status = %v, %v", v.Kind(), ok)
	}
}

func TestResolve_Global(t *testing.T) {
	r := newTestResolver(t, nil)
	for _, doc := range []string{"", "home.md", "notes/a.md"} {
		v, ok := r.Resolve("notes/a.md/title", doc)
		if !ok || value.Display(v) != "Note A" {
			t.Errorf("global from %q = %q, %v", doc, value.Display(v), ok)
		}
	}
	v, ok := r.Resolve("home.md/meta.owner", "")
	if !ok || value.Display(v) != "alice" {
		t.Errorf("home.md/meta.owner = %q", value.Display(v))
	}
}

func TestResolve_OverridePrecedence(t *testing.T) {
	ov := NewOverrides()
	r := newTestResolver(t, ov)
	ov.Set("title", "home.md", value.String("Edited"))
	ov.Set("ghost", "", value.Number(7))

	for _, doc := range []string{"home.md", "notes/a.md", ""} {
		v, ok := r.Resolve("title", doc)
		if !ok || value.Display(v) != "Edited" {
			t.Errorf("title from %q = %q", doc, value.Display(v))
		}
	}
	if v, ok := r.Resolve("ghost", ""); !ok || value.Display(v) != "7" {
		t.Errorf("ghost = %q, %v", value.Display(v), ok)
	}
	if v, _ := r.Lookup("title", "home.md"); value.Display(v) != "Home" {
		t.Errorf("Lookup should ignore overrides, got %q", value.Display(v))
	}
}

func TestSplitGlobal(t *testing.T) {
	exts := []string{".md"}
	cases := []struct {
		in, doc, local string
	}{
		{"a.md/title", "a.md", "title"},
		{"notes/a.md/meta.owner", "notes/a.md", "meta.owner"},
		{"notes/deep/b.md/x", "notes/deep/b.md", "x"},
		{"folder/key", "folder", "key"},
		{"a.md/", "a.md", ""},
	}
	for _, tc := range cases {
		doc, local := SplitGlobal(tc.in, exts)
		if doc != tc.doc || local != tc.local {
			t.Errorf("SplitGlobal(%q) = (%q, %q), want (%q, %q)", tc.in, doc, local, tc.doc, tc.local)
		}
	}
}

func TestFindPaths(t *testing.T) {
	r := newTestResolver(t, nil)

	local := r.FindPathsContaining("", ScopeLocal, "home.md")
	wantLocal := []string{"title", "count", "meta", "meta.owner", "tags", "tags.0"}
	if !reflect.DeepEqual(local, wantLocal) {
		t.Errorf("local = %v", local)
	}

	all := r.FindPathsContaining("title", ScopeAll, "home.md")
	wantAll := []string{"title", "home.md/title", "notes/a.md/title"}
	if !reflect.DeepEqual(all, wantAll) {
		t.Errorf("all = %v", all)
	}

	if got := r.FindPathsStartingWith("meta", ScopeLocal, "home.md"); !reflect.DeepEqual(got, []string{"meta", "meta.owner"}) {
		t.Errorf("prefix = %v", got)
	}
	if got := r.FindPathsStartingWith("notes", ScopeAll, ""); len(got) != 4 {
		t.Errorf("global prefix = %v", got)
	}
	if got := r.FindPathsContaining("Title", ScopeAll, "home.md"); len(got) != 0 {
		t.Errorf("matching must be case-sensitive, got %v", got)
	}
	if got := r.FindPathsContaining("", ScopeLocal, ""); len(got) != 0 {
		t.Errorf("no document should give no local paths, got %v", got)
	}
}

func TestProperties(t *testing.T) {
	r := newTestResolver(t, nil)
	got := r.Properties("meta", ScopeLocal, "home.md", 50)
	want := []models.Property{
		{Path: "meta", Kind: "object", Value: `{"owner":"alice"}`, Resolved: true},
		{Path: "meta.owner", Kind: "string", Value: "alice", Resolved: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Properties = %+v", got)
	}
	for _, p := range r.Properties("notes", ScopeAll, "", 50) {
		if p.Path == "notes" && (p.Resolved || p.Value != NoValue) {
			t.Errorf("folder path should not resolve: %+v", p)
		}
	}
}

func TestPreview(t *testing.T) {
	r := newTestResolver(t, nil)
	if got := r.Preview("missing", "home.md", 50); got != NoValue {
		t.Errorf("missing = %q", got)
	}
	if got := r.Preview("notes/a.md/title", "", 4); got != "Note..." {
		t.Errorf("truncated = %q", got)
	}
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"": ScopeLocal, "local": ScopeLocal, "ALL": ScopeAll, "global": ScopeAll} {
		got, err := ParseScope(in)
		if err != nil || got != want {
			t.Errorf("ParseScope(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseScope("everywhere"); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestOverrides_Prune(t *testing.T) {
	ov := NewOverrides()
	ov.Set("a", "x.md", value.String("1"))
	ov.Set("b", "x.md", value.String("2"))
	ov.Set("c", "", value.String("3"))
	n := ov.Prune(func(path string, e Override) bool { return e.Origin == "x.md" })
	if n != 2 || ov.Len() != 1 {
		t.Errorf("pruned %d, left %d", n, ov.Len())
	}
	if _, ok := ov.Get("c"); !ok {
		t.Error("c should remain")
	}
	ov.Delete("c")
	if ov.Len() != 0 {
		t.Error("Delete did not remove c")
	}
}

func TestOverrides_Concurrent(t *testing.T) {
	ov := NewOverrides()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ov.Set("k", "", value.Number(float64(i)))
				_, _ = ov.Get("k")
			}
		}(i)
	}
	wg.Wait()
	if ov.Len() != 1 {
		t.Errorf("Len = %d", ov.Len())
	}
}
