package internal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/livevars/internal/index"
	"github.com/starford/livevars/internal/resolver"
	"github.com/starford/livevars/internal/sse"
	"github.com/starford/livevars/internal/testutil"
	"github.com/starford/livevars/internal/value"
	"github.com/starford/livevars/internal/watch"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(t.TempDir(), "vault")
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "livevars.db")
	return cfg
}

func TestOpenVault(t *testing.T) {
	cfg := testConfig(t)
	cfg.Variables.Delimiters.Open, cfg.Variables.Delimiters.Close = "<<", ">>"

	vault, err := OpenVault(context.Background(), cfg, testutil.Logger())
	if err != nil {
		t.Fatalf("OpenVault: %v", err)
	}
	if got := vault.Scanner.Syntax("title"); got != "<<title>>" {
		t.Errorf("syntax = %q", got)
	}

	testutil.WriteFiles(t, cfg.Vault.Path, map[string]string{
		"a.md":             "---\ntitle: A\n---\n",
		".obsidian/app.md": "---\ntitle: hidden\n---\n",
	})
	if err := vault.Session.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, ok := vault.Session.Resolve("title", "a.md"); !ok || value.Display(v) != "A" {
		t.Errorf("title = %v, %v", v, ok)
	}
	for _, p := range vault.Session.Paths(resolver.ScopeAll, "") {
		if strings.Contains(p, ".obsidian") {
			t.Errorf("reserved dir leaked into paths: %s", p)
		}
	}
}

func TestOnDocumentsChanged(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	vault, err := OpenVault(ctx, cfg, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	broker := sse.NewBroker(10 * time.Millisecond)
	t.Cleanup(broker.Close)
	client := broker.Subscribe()
	defer broker.Unsubscribe(client)

	testutil.WriteFiles(t, cfg.Vault.Path, map[string]string{"new.md": "---\nstatus: open\n---\n"})
	vault.onDocumentsChanged(ctx, db, broker, testutil.Logger())([]watch.Event{
		{Kind: watch.Created, Path: "new.md"},
	})

	if v, ok := vault.Session.Resolve("status", "new.md"); !ok || value.Display(v) != "open" {
		t.Errorf("session not refreshed: %v, %v", v, ok)
	}
	docs, err := db.DocumentsWhere("status", "open")
	if err != nil || len(docs) != 1 || docs[0] != "new.md" {
		t.Errorf("catalog = %v, %v", docs, err)
	}

	select {
	case msg := <-client:
		if !strings.Contains(string(msg), sse.TypeDocumentCreated) || !strings.Contains(string(msg), "new.md") {
			t.Errorf("event = %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no SSE event")
	}
}

func TestForwardEvents(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteFiles(t, cfg.Vault.Path, map[string]string{"a.md": "---\ntitle: A\n---\n"})
	vault, err := OpenVault(context.Background(), cfg, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}

	broker := sse.NewBroker(time.Hour)
	t.Cleanup(broker.Close)
	client := broker.Subscribe()
	defer broker.Unsubscribe(client)
	stop := vault.forwardEvents(broker)
	defer stop()

	vault.Session.SetOverride("title", "a.md", value.String("B"))

	select {
	case msg := <-client:
		s := string(msg)
		if !strings.Contains(s, sse.TypeVariableUpdated) || !strings.Contains(s, `"value":"B"`) {
			t.Errorf("event = %s", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no SSE event")
	}
}
