// Package session composes the property tree, resolver, override store and
// patch engine into one edit session over a vault.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/livevars/internal/apperr"
	"github.com/starford/livevars/internal/diff"
	"github.com/starford/livevars/internal/frontmatter"
	"github.com/starford/livevars/internal/models"
	"github.com/starford/livevars/internal/proptree"
	"github.com/starford/livevars/internal/resolver"
	"github.com/starford/livevars/internal/value"
)

// Event types delivered to subscribers.
const (
	EventVariableUpdated = "variable.updated"
	EventTreeUpdated     = "tree.updated"
)

// Event describes a change visible to readers of the session.
type Event struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Document  string `json:"document,omitempty"`
	Value     string `json:"value,omitempty"`
	Persisted bool   `json:"persisted,omitempty"`
	Documents int    `json:"documents,omitempty"`
}

// Store is what the session needs from the vault.
type Store interface {
	proptree.Source
	Read(path string) ([]byte, error)
	Write(path string, content []byte) error
}

// Change describes the effect of a Set or Plan.
type Change struct {
	Path      string      `json:"path"`
	Document  string      `json:"document,omitempty"`
	Key       string      `json:"key,omitempty"`
	Value     value.Value `json:"value"`
	Literal   string      `json:"literal"`
	Persisted bool        `json:"persisted"`
	Before    string      `json:"-"`
	After     string      `json:"-"`
	Diff      []diff.Hunk `json:"diff,omitempty"`
}

// Option configures a Session.
type Option func(*Session)

// WithReservedDirs sets the directory prefixes left out of the tree.
func WithReservedDirs(dirs []string) Option {
	return func(s *Session) {
		s.treeOpts.ReservedDirs = dirs
	}
}

// WithExtensions sets the document extensions.
func WithExtensions(exts []string) Option {
	return func(s *Session) {
		if len(exts) > 0 {
			s.treeOpts.Extensions = exts
		}
	}
}

// WithOverrides shares an existing override store.
func WithOverrides(o *resolver.Overrides) Option {
	return func(s *Session) {
		s.overrides = o
	}
}

// Session is safe for concurrent use. Writes to the same document are
// serialized and only one tree rebuild runs at a time.
type Session struct {
	store     Store
	logger    *slog.Logger
	treeOpts  proptree.Options
	overrides *resolver.Overrides

	mu  sync.RWMutex
	res *resolver.Resolver

	refreshMu sync.Mutex
	locks     docLocks

	subsMu sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// New returns a session over store. The tree is empty until Refresh.
func New(store Store, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		store:  store,
		logger: logger,
		treeOpts: proptree.Options{
			ReservedDirs: proptree.DefaultReservedDirs,
			Extensions:   proptree.DefaultExtensions,
		},
		subs: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overrides == nil {
		s.overrides = resolver.NewOverrides()
	}
	s.treeOpts.OnError = func(id string, err error) {
		s.logger.Warn("session: snapshot failed", slog.String("path", id), slog.String("error", err.Error()))
	}
	s.res = resolver.New(nil, s.overrides, s.treeOpts.Extensions)
	return s
}

// Overrides returns the session's override store.
func (s *Session) Overrides() *resolver.Overrides { return s.overrides }

// Resolver returns the resolver over the current tree snapshot.
func (s *Session) Resolver() *resolver.Resolver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.res
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn runs synchronously and must not block.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()
	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) emit(ev Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, fn := range s.subs {
		fn(ev)
	}
}

// Refresh rebuilds the tree from the store and swaps it in. Overrides whose
// value the tree now holds at their origin are dropped.
func (s *Session) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	root, err := proptree.Build(s.store, s.treeOpts)
	if err != nil {
		return fmt.Errorf("session: refresh: %w", err)
	}
	res := resolver.New(root, s.overrides, s.treeOpts.Extensions)

	s.mu.Lock()
	s.res = res
	s.mu.Unlock()

	pruned := s.overrides.Prune(func(path string, o resolver.Override) bool {
		tv, ok := res.Lookup(path, o.Origin)
		return ok && value.Equal(tv, o.Value)
	})
	docs := countDocuments(root)
	s.logger.Debug("session: tree rebuilt",
		slog.Int("documents", docs),
		slog.Int("overrides_pruned", pruned))
	s.emit(Event{Type: EventTreeUpdated, Documents: docs})
	return nil
}

func countDocuments(n *proptree.Node) int {
	if n.IsLeaf() {
		return 1
	}
	total := 0
	for _, name := range n.Names() {
		total += countDocuments(n.Child(name))
	}
	return total
}

// Resolve returns the value bound to path as seen from doc.
func (s *Session) Resolve(path, doc string) (value.Value, bool) {
	return s.Resolver().Resolve(path, doc)
}

// Preview returns the truncated display string for path, or resolver.NoValue.
func (s *Session) Preview(path, doc string, maxLen int) string {
	return s.Resolver().Preview(path, doc, maxLen)
}

// Paths returns every path in scope.
func (s *Session) Paths(scope resolver.Scope, doc string) []string {
	return s.Resolver().Paths(scope, doc)
}

// FindPathsContaining filters the paths in scope by substring.
func (s *Session) FindPathsContaining(q string, scope resolver.Scope, doc string) []string {
	return s.Resolver().FindPathsContaining(q, scope, doc)
}

// FindPathsStartingWith filters the paths in scope by prefix.
func (s *Session) FindPathsStartingWith(q string, scope resolver.Scope, doc string) []string {
	return s.Resolver().FindPathsStartingWith(q, scope, doc)
}

// Properties lists paths in scope containing q with their display values.
func (s *Session) Properties(q string, scope resolver.Scope, doc string, maxLen int) []models.Property {
	return s.Resolver().Properties(q, scope, doc, maxLen)
}

// Read returns the raw text of doc.
func (s *Session) Read(doc string) ([]byte, error) {
	return s.store.Read(doc)
}

// target works out which document a write to path lands in and the key
// inside it. A global path names its own document.
func (s *Session) target(path, doc string) (targetDoc, key string) {
	if strings.Contains(path, proptree.GlobalSep) {
		return resolver.SplitGlobal(path, s.treeOpts.Extensions)
	}
	return doc, path
}

// SetOverride records v for path without touching storage.
func (s *Session) SetOverride(path, doc string, v value.Value) {
	targetDoc, _ := s.target(path, doc)
	s.overrides.Set(path, targetDoc, v)
	s.emit(Event{Type: EventVariableUpdated, Path: path, Document: targetDoc, Value: value.Display(v)})
}

// Set makes v visible at path immediately through an override and then
// persists it into the target document's front matter.
//
// Without a target document only the override is recorded. A failed read
// or write leaves the override as the sole record of the edit; write
// failures wrap apperr.ErrWrite. Once the write lands Set succeeds even if
// the following refresh fails.
func (s *Session) Set(ctx context.Context, path, doc string, v value.Value) (*Change, error) {
	targetDoc, key := s.target(path, doc)
	ch := &Change{Path: path, Document: targetDoc, Key: key, Value: v, Literal: value.ForStorage(v)}
	if targetDoc != "" {
		if _, _, err := frontmatter.SplitKey(key); err != nil {
			return nil, err
		}
	}

	s.overrides.Set(path, targetDoc, v)
	if targetDoc == "" {
		s.emit(Event{Type: EventVariableUpdated, Path: path, Value: value.Display(v)})
		return ch, nil
	}

	if err := s.persist(ctx, ch); err != nil {
		s.logger.Warn("session: persist failed",
			slog.String("path", path),
			slog.String("document", targetDoc),
			slog.String("error", err.Error()))
		s.emit(Event{Type: EventVariableUpdated, Path: path, Document: targetDoc, Value: value.Display(v)})
		return ch, err
	}
	ch.Persisted = true
	s.logger.Info("session: variable persisted",
		slog.String("path", path),
		slog.String("document", targetDoc))

	// The override keeps v visible until a later refresh succeeds.
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("session: refresh after write failed",
			slog.String("document", targetDoc),
			slog.String("error", err.Error()))
	}
	s.emit(Event{Type: EventVariableUpdated, Path: path, Document: targetDoc, Value: value.Display(v), Persisted: true})
	return ch, nil
}

func (s *Session) persist(ctx context.Context, ch *Change) error {
	unlock := s.locks.lock(ch.Document)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := s.store.Read(ch.Document)
	if err != nil {
		return fmt.Errorf("session: read %s: %w", ch.Document, err)
	}
	out, err := frontmatter.Patch(string(raw), ch.Key, ch.Value)
	if err != nil {
		return fmt.Errorf("session: patch %s: %w", ch.Document, err)
	}
	ch.Before, ch.After = string(raw), out
	if out == ch.Before {
		return nil
	}
	if err := s.store.Write(ch.Document, []byte(out)); err != nil {
		return fmt.Errorf("session: write %s: %w: %w", ch.Document, apperr.ErrWrite, err)
	}
	return nil
}

// Plan computes what Set would write without writing it or recording an
// override.
func (s *Session) Plan(path, doc string, v value.Value) (*Change, error) {
	targetDoc, key := s.target(path, doc)
	if targetDoc == "" {
		return nil, fmt.Errorf("session: plan %s: %w", path, apperr.ErrNoDocument)
	}
	raw, err := s.store.Read(targetDoc)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", targetDoc, err)
	}
	out, err := frontmatter.Patch(string(raw), key, v)
	if err != nil {
		return nil, fmt.Errorf("session: patch %s: %w", targetDoc, err)
	}
	return &Change{
		Path:     path,
		Document: targetDoc,
		Key:      key,
		Value:    v,
		Literal:  value.ForStorage(v),
		Before:   string(raw),
		After:    out,
		Diff:     diff.Hunks(string(raw), out, diff.DefaultContext),
	}, nil
}

// docLocks hands out one mutex per document.
type docLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func (l *docLocks) lock(doc string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*docLock)
	}
	dl, ok := l.locks[doc]
	if !ok {
		dl = &docLock{}
		l.locks[doc] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		if dl.refs--; dl.refs == 0 {
			delete(l.locks, doc)
		}
		l.mu.Unlock()
	}
}
