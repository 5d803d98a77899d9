package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	menus [][]kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menus = append(f.menus, cmds)
	return nil
}

func (f *fakeAdapter) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 10, FromID: from, Text: text}}
}

func newManager(t *testing.T) (*CommandManager, *fakeAdapter) {
	t.Helper()
	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, []int64{1})
	m.Register(
		Command{
			Name:        "echo",
			Aliases:     []string{"say"},
			Description: "repeat the arguments",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, strings.Join(req.Args, " "))
			},
		},
		Command{
			Name:        "secret",
			Description: "owners only",
			Access:      AccessOwnerOnly,
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, "ok")
			},
		},
		Command{
			Name: "fail",
			Handle: func(context.Context, *Request) error {
				return errors.New("no luck")
			},
		},
		Command{
			Name: "panic",
			Handle: func(context.Context, *Request) error {
				panic("boom")
			},
		},
	)
	return m, ad
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		name string
		args int
		ok   bool
	}{
		{"/help", "help", 0, true},
		{"/Price@pricebot milk", "price", 1, true},
		{"  /enable  milk  ", "enable", 1, true},
		{"hello", "", 0, false},
		{"/", "", 0, false},
		{"", "", 0, false},
	}
	for _, tt := range tests {
		name, args, ok := parseCommand(tt.in)
		if name != tt.name || len(args) != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q,%v,%v", tt.in, name, args, ok)
		}
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		up   kit.Update
		want string
	}{
		{"command", msg(2, "/echo a b"), "a b"},
		{"alias", msg(2, "/say hi"), "hi"},
		{"unknown command", msg(2, "/nope"), UnknownCommandText},
		{"plain text", msg(2, "what is the price"), UnknownCommandText},
		{"owner allowed", msg(1, "/secret"), "ok"},
		{"owner denied", msg(2, "/secret"), "⛔ This command is restricted to the bot owner."},
		{"handler error", msg(2, "/fail"), "⚠️ no luck"},
		{"handler panic", msg(2, "/panic"), "⚠️ internal error"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, ad := newManager(t)
			m.Dispatch(context.Background(), tt.up)
			got := ad.messages()
			if len(got) != 1 || got[0] != tt.want {
				t.Fatalf("sent = %q, want [%q]", got, tt.want)
			}
		})
	}
}

func TestHelpHidesOwnerCommands(t *testing.T) {
	t.Parallel()
	m, ad := newManager(t)
	m.Dispatch(context.Background(), msg(2, "/help"))
	m.Dispatch(context.Background(), msg(1, "/help"))
	got := ad.messages()
	if len(got) != 2 {
		t.Fatalf("sent %d messages", len(got))
	}
	if strings.Contains(got[0], "/secret") {
		t.Fatalf("non-owner help lists owner command:\n%s", got[0])
	}
	if !strings.Contains(got[1], "/secret") || !strings.Contains(got[1], "/echo - repeat the arguments") {
		t.Fatalf("owner help incomplete:\n%s", got[1])
	}
}

func TestSetOwnersTakesEffect(t *testing.T) {
	t.Parallel()
	m, ad := newManager(t)
	m.SetOwners([]int64{2})
	m.Dispatch(context.Background(), msg(2, "/secret"))
	if got := ad.messages(); len(got) != 1 || got[0] != "ok" {
		t.Fatalf("sent = %q", got)
	}
}

func TestSyncMenu(t *testing.T) {
	t.Parallel()
	m, ad := newManager(t)
	m.SyncMenu(context.Background())
	if len(ad.menus) != 1 {
		t.Fatalf("menu updates = %d", len(ad.menus))
	}
	var secret kit.BotCommand
	for _, c := range ad.menus[0] {
		if c.Command == "secret" {
			secret = c
		}
	}
	if !strings.HasPrefix(secret.Description, "🔒") {
		t.Fatalf("owner command not marked: %+v", secret)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Price":       "price",
		"set-enabled": "set_enabled",
		"a  b":        "a_b",
		"9lives":      "cmd_9lives",
		"!!!":         "",
		"__x__":       "x",
	}
	for in, want := range tests {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Errorf("sanitizeTelegramCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDispatchLoopStopsOnCancel(t *testing.T) {
	t.Parallel()
	m, ad := newManager(t)
	updates := make(chan kit.Update, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates, 2)
		close(done)
	}()
	updates <- msg(2, "/echo loop")

	deadline := time.Now().Add(2 * time.Second)
	for len(ad.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("DispatchLoop did not return")
	}
	if got := ad.messages(); len(got) != 1 || got[0] != "loop" {
		t.Fatalf("sent = %q", got)
	}
}
