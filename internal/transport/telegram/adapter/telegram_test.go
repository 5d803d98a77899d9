package adapter

import (
	"strings"
	"testing"

	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	if got := SplitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text = %q", got)
	}

	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := SplitText(text, 8)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("newline split = %q", got)
	}

	// No usable newline: hard cut on rune boundaries.
	got = SplitText(strings.Repeat("€", 10), 4)
	if len(got) != 3 || got[0] != "€€€€" || got[2] != "€€" {
		t.Fatalf("rune split = %q", got)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestForwardDropsWhenFull(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out := make(chan kit.Update, 1)
	a.out.Store((chan<- kit.Update)(out))
	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{Text: "/help"}}
	a.forward(up)
	a.forward(up)
	if len(out) != 1 || a.dropped.Load() != 1 {
		t.Fatalf("queued=%d dropped=%d, want 1/1", len(out), a.dropped.Load())
	}
}
