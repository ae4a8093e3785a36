package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/livevars/internal/index"
	"github.com/starford/livevars/internal/render"
	"github.com/starford/livevars/internal/session"
	"github.com/starford/livevars/internal/sse"
	"github.com/starford/livevars/internal/storage"
	"github.com/starford/livevars/internal/watch"
)

// Vault bundles the components that operate on one vault directory.
type Vault struct {
	Store   *storage.FS
	Session *session.Session
	Scanner *render.Scanner
}

// OpenVault builds storage, the edit session and the reference scanner from
// cfg and loads the property tree.
func OpenVault(ctx context.Context, cfg *Config, logger *slog.Logger) (*Vault, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path,
		storage.WithReservedDirs(cfg.Vault.ReservedDirs),
		storage.WithExtensions(cfg.Vault.Extensions),
	)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	scanner, err := render.NewScanner(cfg.Variables.Delimiters.Open, cfg.Variables.Delimiters.Close)
	if err != nil {
		return nil, fmt.Errorf("init scanner: %w", err)
	}

	sess := session.New(store, logger,
		session.WithReservedDirs(cfg.Vault.ReservedDirs),
		session.WithExtensions(cfg.Vault.Extensions),
	)
	if err := sess.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load property tree: %w", err)
	}

	return &Vault{Store: store, Session: sess, Scanner: scanner}, nil
}

// Watcher returns a change watcher over the vault directory.
func (v *Vault) Watcher(cfg *Config, logger *slog.Logger) *watch.Watcher {
	return watch.New(v.Store.Root(), v.Store, cfg.Watch.Debounce, logger)
}

// onDocumentsChanged returns the watcher callback: rebuild the tree, bring
// the catalog up to date, then tell SSE clients. broker may be nil.
func (v *Vault) onDocumentsChanged(ctx context.Context, db index.Catalog, broker *sse.Broker, logger *slog.Logger) watch.BatchFunc {
	return func(events []watch.Event) {
		if err := v.Session.Refresh(ctx); err != nil {
			logger.Error("watcher: refresh failed", slog.String("error", err.Error()))
			return
		}
		if err := index.Sync(db, v.Store, logger); err != nil {
			logger.Warn("watcher: catalog sync failed", slog.String("error", err.Error()))
		}
		if broker == nil {
			return
		}
		for _, ev := range events {
			broker.PublishDocumentEvent(string(ev.Kind), ev.Path)
		}
	}
}

// forwardEvents relays session events to SSE clients. The returned function
// stops forwarding.
func (v *Vault) forwardEvents(broker *sse.Broker) (stop func()) {
	return v.Session.Subscribe(func(ev session.Event) {
		switch ev.Type {
		case session.EventTreeUpdated:
			broker.PublishTreeUpdated(ev.Documents)
		case session.EventVariableUpdated:
			broker.PublishVariableUpdated(ev.Document, ev)
		}
	})
}
