package proptree

import (
	"errors"
	"reflect"
	"testing"

	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/value"
)

type fakeSource struct {
	entries []models.TreeEntry
	docs    map[string]*value.Map
	fail    map[string]bool
	listErr error
}

func (f *fakeSource) ListTree() ([]models.TreeEntry, error) {
	return f.entries, f.listErr
}

func (f *fakeSource) Snapshot(id string) (*value.Map, error) {
	if f.fail[id] {
		return nil, errors.New("unreadable")
	}
	return f.docs[id], nil
}

func props(kv ...any) *value.Map {
	m := value.NewMap()
	for i := 0; i < len(kv); i += 2 {
		m.Set(kv[i].(string), value.FromAny(kv[i+1]))
	}
	return m
}

func sampleSource() *fakeSource {
	return &fakeSource{
		entries: []models.TreeEntry{
			{Path: ".obsidian", IsDir: true},
			{Path: ".obsidian/workspace.md"},
			{Path: "index.md"},
			{Path: "notes", IsDir: true},
			{Path: "notes/a.md"},
			{Path: "notes/image.png"},
			{Path: "notes/empty.md"},
			{Path: "projects", IsDir: true},
		},
		docs: map[string]*value.Map{
			"index.md":               props("title", "Home"),
			"notes/a.md":             props("title", "A", "meta", map[string]any{"owner": "alice"}),
			".obsidian/workspace.md": props("hidden", true),
		},
	}
}

func TestBuild_Structure(t *testing.T) {
	root, err := Build(sampleSource(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := root.Names(); !reflect.DeepEqual(got, []string{"index.md", "notes", "projects"}) {
		t.Errorf("root names = %v", got)
	}
	notes := root.Child("notes")
	if notes.IsLeaf() {
		t.Fatal("notes should be a branch")
	}
	if got := notes.Names(); !reflect.DeepEqual(got, []string{"a.md", "empty.md"}) {
		t.Errorf("notes names = %v", got)
	}
	if root.Child("projects").Len() != 0 {
		t.Error("empty folder should be an empty branch")
	}
	empty := notes.Child("empty.md")
	if !empty.IsLeaf() || empty.Properties().Len() != 0 {
		t.Error("document without front matter should be an empty leaf")
	}
}

func TestBuild_SnapshotFailureDegrades(t *testing.T) {
	src := sampleSource()
	src.fail = map[string]bool{"notes/a.md": true}
	var reported []string
	root, err := Build(src, Options{OnError: func(id string, _ error) { reported = append(reported, id) }})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reflect.DeepEqual(reported, []string{"notes/a.md"}) {
		t.Errorf("reported = %v", reported)
	}
	m, ok := Document(root, "notes/a.md")
	if !ok || m.Len() != 0 {
		t.Error("failed snapshot should yield an empty leaf")
	}
	if _, ok := Document(root, "index.md"); !ok {
		t.Error("other documents should still be indexed")
	}
}

func TestBuild_ListFailure(t *testing.T) {
	_, err := Build(&fakeSource{listErr: errors.New("boom")}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBuild_CustomOptions(t *testing.T) {
	src := &fakeSource{
		entries: []models.TreeEntry{
			{Path: "_drafts/x.md"},
			{Path: "a.markdown"},
			{Path: "b.md"},
		},
	}
	root, err := Build(src, Options{ReservedDirs: []string{"_"}, Extensions: []string{".markdown"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := root.Names(); !reflect.DeepEqual(got, []string{"a.markdown"}) {
		t.Errorf("names = %v", got)
	}
}

func TestBuild_MissingParentEntries(t *testing.T) {
	src := &fakeSource{entries: []models.TreeEntry{{Path: "deep/er/doc.md"}}}
	root, err := Build(src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if Localize(root, "deep/er/doc.md") == nil {
		t.Error("intermediate branches should be created")
	}
}

func TestLocalize(t *testing.T) {
	root, _ := Build(sampleSource(), Options{})
	if n := Localize(root, "notes/a.md"); !n.IsLeaf() {
		t.Error("notes/a.md should be a leaf")
	}
	if n := Localize(root, "notes"); n == nil || n.IsLeaf() {
		t.Error("notes should be a branch")
	}
	for _, id := range []string{"", "missing.md", "notes/missing.md", "notes/a.md/title", ".obsidian/workspace.md"} {
		if n := Localize(root, id); n != nil {
			t.Errorf("Localize(%q) should be nil", id)
		}
	}
}

func TestFlattenPaths_Global(t *testing.T) {
	root, _ := Build(sampleSource(), Options{})
	want := []string{
		"index.md",
		"index.md/title",
		"notes",
		"notes/a.md",
		"notes/a.md/title",
		"notes/a.md/meta",
		"notes/a.md/meta.owner",
		"notes/empty.md",
		"projects",
	}
	if got := FlattenPaths(root, "", false); !reflect.DeepEqual(got, want) {
		t.Errorf("global paths\n got %v\nwant %v", got, want)
	}
}

func TestFlattenPaths_Local(t *testing.T) {
	m := value.NewMap()
	m.Set("title", value.String("A"))
	m.Set("tags", value.List(value.String("go"), value.String("yaml")))
	meta := value.NewMap()
	meta.Set("owner", value.String("alice"))
	m.Set("meta", value.Object(meta))
	leaf := newLeaf(m)

	want := []string{"title", "tags", "tags.0", "tags.1", "meta", "meta.owner"}
	if got := FlattenPaths(leaf, "", true); !reflect.DeepEqual(got, want) {
		t.Errorf("local paths = %v", got)
	}
}

func TestFlattenPaths_Deterministic(t *testing.T) {
	root, _ := Build(sampleSource(), Options{})
	first := FlattenPaths(root, "", false)
	second := FlattenPaths(root, "", false)
	if !reflect.DeepEqual(first, second) {
		t.Error("flattening the same tree twice should give the same order")
	}
	if got := FlattenPaths(nil, "", false); len(got) != 0 {
		t.Errorf("nil node = %v", got)
	}
}
