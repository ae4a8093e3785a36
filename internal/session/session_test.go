package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/starford/livevars/internal/apperr"
	"github.com/starford/livevars/internal/frontmatter"
	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/resolver"
	"github.com/starford/livevars/internal/testutil"
	"github.com/starford/livevars/internal/value"
)

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	files    map[string]string
	failRead bool
	failList bool
	writeErr error
	writes   int

	// failListAfterWrite makes ListTree fail once a write has landed.
	failListAfterWrite bool
}

func newMemStore(files map[string]string) *memStore {
	return &memStore{files: files}
}

func (m *memStore) ListTree() ([]models.TreeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errors.New("listing unavailable")
	}
	dirs := map[string]bool{}
	var out []models.TreeEntry
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if i := strings.LastIndex(p, "/"); i > 0 && !dirs[p[:i]] {
			dirs[p[:i]] = true
			out = append(out, models.TreeEntry{Path: p[:i], IsDir: true})
		}
		out = append(out, models.TreeEntry{Path: p})
	}
	return out, nil
}

func (m *memStore) Snapshot(id string) (*value.Map, error) {
	raw, err := m.Read(id)
	if err != nil {
		return nil, err
	}
	return frontmatter.Parse(raw), nil
}

func (m *memStore) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead {
		return nil, errors.New("disk on fire")
	}
	s, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, apperr.ErrNotFound)
	}
	return []byte(s), nil
}

func (m *memStore) Write(path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.files[path] = string(content)
	if m.failListAfterWrite {
		m.failList = true
	}
	return nil
}

func (m *memStore) get(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[path]
}

func newSession(t *testing.T, files map[string]string) (*Session, *memStore) {
	t.Helper()
	store := newMemStore(files)
	s := New(store, testutil.Logger())
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return s, store
}

func display(t *testing.T, s *Session, path, doc string) string {
	t.Helper()
	v, ok := s.Resolve(path, doc)
	if !ok {
		t.Fatalf("Resolve(%q, %q) not found", path, doc)
	}
	return value.Display(v)
}

func TestResolveBeforeRefresh(t *testing.T) {
	s := New(newMemStore(map[string]string{"a.md": "---\ntitle: A\n---\n"}), testutil.Logger())
	if _, ok := s.Resolve("title", "a.md"); ok {
		t.Error("tree should be empty before Refresh")
	}
}

func TestSet_PersistsAndRefreshes(t *testing.T) {
	s, store := newSession(t, map[string]string{
		"a.md": "---\ntitle: Old\nauthor: bob\n---\nBody {{title}}\n",
	})
	ch, err := s.Set(context.Background(), "title", "a.md", value.String("Hello"))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !ch.Persisted || ch.Literal != "Hello" {
		t.Errorf("change = %+v", ch)
	}
	if got := store.get("a.md"); got != "---\ntitle: Hello\nauthor: bob\n---\nBody {{title}}\n" {
		t.Errorf("stored = %q", got)
	}
	if got := display(t, s, "title", "a.md"); got != "Hello" {
		t.Errorf("title = %q", got)
	}
	if s.Overrides().Len() != 0 {
		t.Error("override should be pruned once the tree holds the value")
	}
}

func TestSet_NestedGlobalPath(t *testing.T) {
	s, store := newSession(t, map[string]string{
		"home.md":       "no front matter\n",
		"notes/team.md": "---\nmeta: none\n---\n",
	})
	if _, err := s.Set(context.Background(), "notes/team.md/meta.owner", "home.md", value.String("alice")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := store.get("notes/team.md"); got != "---\nmeta:\n  owner: alice\n---\n" {
		t.Errorf("stored = %q", got)
	}
	if got := store.get("home.md"); got != "no front matter\n" {
		t.Errorf("current document touched: %q", got)
	}
	if got := display(t, s, "meta.owner", "notes/team.md"); got != "alice" {
		t.Errorf("meta.owner = %q", got)
	}
}

func TestSet_NoDocumentRecordsOverrideOnly(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "x"})
	ch, err := s.Set(context.Background(), "ghost", "", value.Number(3))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ch.Persisted {
		t.Error("nothing should be persisted without a document")
	}
	if store.writes != 0 {
		t.Errorf("writes = %d", store.writes)
	}
	if got := display(t, s, "ghost", "a.md"); got != "3" {
		t.Errorf("ghost = %q", got)
	}
}

func TestSet_WriteFailureKeepsOverride(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "---\ntitle: Old\n---\n"})
	store.writeErr = errors.New("read-only file system")

	_, err := s.Set(context.Background(), "title", "a.md", value.String("New"))
	if !errors.Is(err, apperr.ErrWrite) {
		t.Fatalf("err = %v, want ErrWrite", err)
	}
	if !strings.Contains(err.Error(), "read-only file system") {
		t.Errorf("error should carry the cause: %v", err)
	}
	if got := display(t, s, "title", "a.md"); got != "New" {
		t.Errorf("override should mask the tree, got %q", got)
	}
	if got := store.get("a.md"); got != "---\ntitle: Old\n---\n" {
		t.Errorf("document changed: %q", got)
	}
}

func TestSet_RefreshFailureAfterWriteStillSucceeds(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "---\ntitle: Old\n---\n"})
	store.failListAfterWrite = true

	var events []Event
	stop := s.Subscribe(func(ev Event) { events = append(events, ev) })
	defer stop()

	ch, err := s.Set(context.Background(), "title", "a.md", value.String("New"))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !ch.Persisted {
		t.Error("change should be persisted")
	}
	if got := store.get("a.md"); got != "---\ntitle: New\n---\n" {
		t.Errorf("document = %q", got)
	}
	if got := display(t, s, "title", "a.md"); got != "New" {
		t.Errorf("title = %q", got)
	}
	if len(events) == 0 || !events[len(events)-1].Persisted {
		t.Errorf("events = %+v", events)
	}
}

func TestSet_MissingDocument(t *testing.T) {
	s, _ := newSession(t, map[string]string{"a.md": "x"})
	_, err := s.Set(context.Background(), "title", "missing.md", value.String("X"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSet_InvalidPathRejectedUpFront(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "---\n---\n"})
	_, err := s.Set(context.Background(), "a.b.c", "a.md", value.String("X"))
	if !errors.Is(err, apperr.ErrInvalidPath) {
		t.Fatalf("err = %v, want ErrInvalidPath", err)
	}
	if s.Overrides().Len() != 0 || store.writes != 0 {
		t.Error("an invalid path must not leave an override or a write")
	}
}

func TestOverridePrecedenceUntilTreeMatches(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "---\nstatus: draft\n---\n"})
	s.SetOverride("status", "a.md", value.String("review"))
	if got := display(t, s, "status", "a.md"); got != "review" {
		t.Fatalf("status = %q", got)
	}

	// Unrelated refresh: the tree still disagrees, so the override stays.
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := display(t, s, "status", "a.md"); got != "review" {
		t.Errorf("status after refresh = %q", got)
	}

	// An external edit catches the tree up.
	_ = store.Write("a.md", []byte("---\nstatus: review\n---\n"))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Overrides().Len() != 0 {
		t.Error("override should be pruned after the tree caught up")
	}
}

func TestPlan(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "---\ntitle: Old\n---\nbody\n"})
	ch, err := s.Plan("title", "a.md", value.String("New"))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if ch.After != "---\ntitle: New\n---\nbody\n" {
		t.Errorf("after = %q", ch.After)
	}
	if len(ch.Diff) != 1 {
		t.Errorf("diff = %+v", ch.Diff)
	}
	if store.writes != 0 || s.Overrides().Len() != 0 {
		t.Error("Plan must not write or record overrides")
	}
	if _, err := s.Plan("title", "", value.String("x")); !errors.Is(err, apperr.ErrNoDocument) {
		t.Errorf("err = %v, want ErrNoDocument", err)
	}
}

func TestSubscribe(t *testing.T) {
	s, _ := newSession(t, map[string]string{"a.md": "---\ntitle: A\n---\n"})
	var mu sync.Mutex
	var got []string
	unsubscribe := s.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})
	if _, err := s.Set(context.Background(), "title", "a.md", value.String("B")); err != nil {
		t.Fatal(err)
	}
	unsubscribe()
	_ = s.Refresh(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []string{EventTreeUpdated, EventVariableUpdated}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSet_ConcurrentWritesSameDocument(t *testing.T) {
	s, store := newSession(t, map[string]string{"a.md": "---\n---\n"})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			if _, err := s.Set(context.Background(), key, "a.md", value.Number(float64(i))); err != nil {
				t.Errorf("Set %s: %v", key, err)
			}
		}(i)
	}
	wg.Wait()
	props := frontmatter.Parse([]byte(store.get("a.md")))
	if props.Len() != 10 {
		t.Errorf("lost updates: %q", store.get("a.md"))
	}
}

func TestPathsAndProperties(t *testing.T) {
	s, _ := newSession(t, map[string]string{
		"a.md":     "---\ntitle: A\n---\n",
		"sub/b.md": "---\ntitle: B\n---\n",
	})
	if got := s.Paths(resolver.ScopeLocal, "a.md"); len(got) != 1 || got[0] != "title" {
		t.Errorf("local = %v", got)
	}
	if got := s.FindPathsStartingWith("sub", resolver.ScopeAll, "a.md"); len(got) != 3 {
		t.Errorf("sub paths = %v", got)
	}
	props := s.Properties("title", resolver.ScopeAll, "a.md", 50)
	if len(props) != 3 || props[2].Path != "sub/b.md/title" || props[2].Value != "B" {
		t.Errorf("props = %+v", props)
	}
	if got := s.Preview("nope", "a.md", 50); got != resolver.NoValue {
		t.Errorf("preview = %q", got)
	}
}
