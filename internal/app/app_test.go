package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"pricebot/internal/lifecycle"
	kit "pricebot/internal/transport"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []kit.Message
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, kit.Message{ChatID: to.ChatID, Text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeAdapter) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestApp(t *testing.T) (*App, *fakeAdapter) {
	t.Helper()
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><span class="ct-price-formatted">€1,29</span></body></html>`)
	}))
	t.Cleanup(shop.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := fmt.Sprintf(`{
  "telegram": {"token": "test-token", "owner_user_ids": [1], "chat_id": 10},
  "logging": {"level": "error", "console": false, "file": {"enabled": false}, "telegram": {"enabled": false}},
  "storage": {"driver": "sqlite", "path": %q},
  "workers": [{"name": "milk", "url": %q, "every": "1h"}]
}`, filepath.Join(dir, "pricebot.db"), shop.URL+"/milk.html")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	ad := &fakeAdapter{}
	a, err := New(cfgPath, WithAdapter(ad), WithDotEnv(filepath.Join(dir, "missing.env")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		defer cancel()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := a.Stop(sctx, StopAppStop); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return a, ad
}

func command(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 10, FromID: from, Text: text}}
}

func milkState(a *App) lifecycle.RunState {
	svc, err := a.Services().GetService("milk")
	if err != nil {
		return lifecycle.RunState(-1)
	}
	return svc.State()
}

func waitForAlert(t *testing.T, ad *fakeAdapter) {
	t.Helper()
	want := "Current milk price is 1.29 € 🥛🐄"
	waitFor(t, "initial price alert", func() bool {
		for _, s := range ad.texts() {
			if s == want {
				return true
			}
		}
		return false
	})
}

func TestWorkerAnnouncesAndSleeps(t *testing.T) {
	a, ad := newTestApp(t)
	waitForAlert(t, ad)
	waitFor(t, "sleeping state", func() bool { return milkState(a) == lifecycle.Sleeping })
}

func TestCommands(t *testing.T) {
	a, ad := newTestApp(t)
	waitForAlert(t, ad)
	waitFor(t, "sleeping state", func() bool { return milkState(a) == lifecycle.Sleeping })
	ctx := context.Background()

	a.cmdm.Dispatch(ctx, command(2, "/price"))
	if got := ad.last(); got != "Current milk price is '1.29' €" {
		t.Fatalf("/price reply = %q", got)
	}

	a.cmdm.Dispatch(ctx, command(2, "/services"))
	if got := ad.last(); !strings.Contains(got, "milk: sleeping") {
		t.Fatalf("/services reply = %q", got)
	}

	a.cmdm.Dispatch(ctx, command(2, "/disable milk"))
	if got := ad.last(); !strings.HasPrefix(got, "⛔") {
		t.Fatalf("non-owner /disable reply = %q", got)
	}

	a.cmdm.Dispatch(ctx, command(1, "/disable milk"))
	if got := ad.last(); got != "milk disabled." {
		t.Fatalf("/disable reply = %q", got)
	}
	waitFor(t, "paused state", func() bool { return milkState(a) == lifecycle.Paused })

	a.cmdm.Dispatch(ctx, command(1, "/disable milk"))
	if got := ad.last(); got != "milk is already disabled." {
		t.Fatalf("second /disable reply = %q", got)
	}

	a.cmdm.Dispatch(ctx, command(1, "/enable milk"))
	if got := ad.last(); got != "milk enabled." {
		t.Fatalf("/enable reply = %q", got)
	}
	waitFor(t, "sleeping again", func() bool { return milkState(a) == lifecycle.Sleeping })

	a.cmdm.Dispatch(ctx, command(1, "/enable cheese"))
	if got := ad.last(); got != `⚠️ unknown worker "cheese"` {
		t.Fatalf("/enable unknown reply = %q", got)
	}

	a.cmdm.Dispatch(ctx, command(2, "hello"))
	if got := ad.last(); got != "Unable to handle the message. Type /help to see the usage." {
		t.Fatalf("plain text reply = %q", got)
	}
}

func TestDisabledWorkerSurvivesRestart(t *testing.T) {
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<span class="ct-price-formatted">2,00 €</span>`)
	}))
	defer shop.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`
telegram:
  token: test-token
  owner_user_ids: [1]
  chat_id: 10
logging:
  level: error
storage:
  driver: sqlite
  path: %q
workers:
  - name: milk
    url: %q
    every: 1h
`, filepath.Join(dir, "pricebot.db"), shop.URL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	run := func(fn func(a *App)) {
		a, err := New(cfgPath, WithAdapter(&fakeAdapter{}), WithDotEnv(filepath.Join(dir, "missing.env")))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := a.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
		fn(a)
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := a.Stop(sctx, StopAppStop); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}

	run(func(a *App) {
		if _, err := a.Services().SetEnabled(context.Background(), "milk", false); err != nil {
			t.Fatal(err)
		}
		waitFor(t, "paused state", func() bool { return milkState(a) == lifecycle.Paused })
	})
	run(func(a *App) {
		svc, err := a.Services().GetService("milk")
		if err != nil {
			t.Fatal(err)
		}
		if svc.Enabled() || svc.State() != lifecycle.Paused {
			t.Fatalf("recovered enabled=%v state=%v, want disabled/paused", svc.Enabled(), svc.State())
		}
	})
}

func TestFailedWorkerDoesNotStopOthers(t *testing.T) {
	shop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<span class="ct-price-formatted">1,00 €</span>`)
	}))
	defer shop.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "pricebot.db")

	// Rows named "bad" are rejected by the database.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE services(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			enabled BOOLEAN NOT NULL,
			creation_time TEXT NOT NULL
		)`,
		`CREATE TRIGGER reject_bad BEFORE INSERT ON services
		WHEN NEW.name = 'bad'
		BEGIN SELECT RAISE(ABORT, 'disk says no'); END`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	_ = db.Close()

	cfgPath := filepath.Join(dir, "config.json")
	cfg := fmt.Sprintf(`{
  "telegram": {"token": "test-token", "owner_user_ids": [1], "chat_id": 10},
  "logging": {"level": "error"},
  "storage": {"driver": "sqlite", "path": %q},
  "workers": [
    {"name": "good", "url": %q, "every": "1h"},
    {"name": "bad", "url": %q, "every": "1h"}
  ]
}`, dbPath, shop.URL, shop.URL)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	a, err := New(cfgPath, WithAdapter(&fakeAdapter{}), WithDotEnv(filepath.Join(dir, "missing.env")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := a.Stop(sctx, StopAppStop); err != nil {
			t.Errorf("Stop: %v", err)
		}
	}()

	if _, err := a.Services().GetService("bad"); !errors.Is(err, lifecycle.ErrServiceNotFound) {
		t.Fatalf(`GetService("bad") err = %v, want ErrServiceNotFound`, err)
	}
	if n := a.Services().Len(); n != 1 {
		t.Fatalf("registered workers = %d, want 1", n)
	}
	waitFor(t, "good worker sleeping", func() bool {
		svc, err := a.Services().GetService("good")
		return err == nil && svc.State() == lifecycle.Sleeping
	})
	select {
	case <-a.Done():
		t.Fatal("app stopped after a worker failed to start")
	default:
	}
}
