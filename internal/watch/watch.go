// Package watch turns file-system notifications under the vault into
// debounced batches of document change events.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 200 * time.Millisecond

// Kind classifies a document change.
type Kind string

// Change kinds.
const (
	Created Kind = "created"
	Updated Kind = "updated"
	Deleted Kind = "deleted"
)

// Event reports one changed document. Path is the slash-separated document
// id. A Deleted event may also name a directory that left the vault.
type Event struct {
	Kind Kind
	Path string
}

// Filter decides which names the watcher cares about.
type Filter interface {
	// Reserved reports whether a file or directory name is ignored.
	Reserved(name string) bool
	// IsDocument reports whether a file name is a document.
	IsDocument(name string) bool
}

// BatchFunc receives the coalesced events of one debounce window, in the
// order each path first changed.
type BatchFunc func(events []Event)

// Watcher watches a vault root recursively.
type Watcher struct {
	root     string
	filter   Filter
	debounce time.Duration
	logger   *slog.Logger
}

// New returns a watcher for root. A non-positive debounce means
// DefaultDebounce.
func New(root string, filter Filter, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{root: root, filter: filter, debounce: debounce, logger: logger}
}

// Run processes file-system events until ctx is cancelled, calling onBatch
// once per debounce window that saw document changes.
//
// New directories created at runtime are added to the watch list and the
// documents already inside them are reported as created. A rename reports
// the old path as deleted; the new path arrives as its own create.
func (w *Watcher) Run(ctx context.Context, onBatch BatchFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	var (
		pending = newBatch()
		timer   *time.Timer
		fire    <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-fire:
			if events := pending.drain(); len(events) > 0 {
				w.logger.Debug("watcher: batch", slog.Int("events", len(events)))
				onBatch(events)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(fw, ev, pending) {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle records ev into b and reports whether anything was added.
func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, b *batch) bool {
	abs := ev.Name
	name := filepath.Base(abs)
	if w.filter.Reserved(name) {
		return false
	}
	rel, ok := w.rel(abs)
	if !ok || w.underReserved(rel) {
		return false
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			if addErr := w.addDirsRecursive(fw, abs); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", abs),
					slog.String("error", addErr.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", abs))
			}
			return w.collectDir(abs, b)
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && unwatchTree(fw, abs) {
		w.logger.Debug("watcher: dir left the vault", slog.String("path", abs))
		b.add(Deleted, rel)
		return true
	}

	if !w.filter.IsDocument(name) {
		return false
	}
	switch {
	case ev.Op&fsnotify.Create != 0:
		b.add(Created, rel)
	case ev.Op&fsnotify.Write != 0:
		b.add(Updated, rel)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		b.add(Deleted, rel)
	default:
		return false
	}
	return true
}

// unwatchTree drops the watches on dir and everything below it and reports
// whether dir was a watched directory.
func unwatchTree(fw *fsnotify.Watcher, dir string) bool {
	found := false
	prefix := dir + string(filepath.Separator)
	for _, p := range fw.WatchList() {
		if p != dir && !strings.HasPrefix(p, prefix) {
			continue
		}
		found = found || p == dir
		_ = fw.Remove(p)
	}
	return found
}

// collectDir reports the documents already present in a new directory.
func (w *Watcher) collectDir(dir string, b *batch) bool {
	added := false
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p != dir && w.filter.Reserved(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !w.filter.IsDocument(d.Name()) {
			return nil
		}
		if rel, ok := w.rel(p); ok {
			b.add(Created, rel)
			added = true
		}
		return nil
	})
	return added
}

func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) underReserved(rel string) bool {
	for dir := filepath.Dir(filepath.FromSlash(rel)); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if w.filter.Reserved(filepath.Base(dir)) {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-reserved subdirectories.
func (w *Watcher) addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.filter.Reserved(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

// batch coalesces events by path.
type batch struct {
	order []string
	kinds map[string]Kind
}

func newBatch() *batch {
	return &batch{kinds: make(map[string]Kind)}
}

func (b *batch) add(k Kind, path string) {
	prev, seen := b.kinds[path]
	if !seen {
		b.order = append(b.order, path)
		b.kinds[path] = k
		return
	}
	switch {
	case prev == Created && k == Updated:
		// Still new to consumers.
	case prev == Deleted && k == Created:
		b.kinds[path] = Updated
	default:
		b.kinds[path] = k
	}
}

func (b *batch) drain() []Event {
	out := make([]Event, 0, len(b.order))
	for _, p := range b.order {
		out = append(out, Event{Kind: b.kinds[p], Path: p})
	}
	b.order = nil
	b.kinds = make(map[string]Kind)
	return out
}
