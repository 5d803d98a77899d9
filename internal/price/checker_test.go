package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"pricebot/internal/lifecycle"
)

type seqSource struct {
	mu     sync.Mutex
	prices []any // float64 or error
}

func (s *seqSource) Fetch(ctx context.Context, url string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prices) == 0 {
		return 0, errors.New("exhausted")
	}
	v := s.prices[0]
	s.prices = s.prices[1:]
	if err, ok := v.(error); ok {
		return 0, err
	}
	return v.(float64), nil
}

// countGate lets n cycles through, then reports the service as gone.
type countGate struct{ n int }

func (g *countGate) Wait(ctx context.Context, name string) error {
	if g.n == 0 {
		return fmt.Errorf("%w: %s", lifecycle.ErrServiceNotFound, name)
	}
	g.n--
	return nil
}

type recordNotifier struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recordNotifier) Notify(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
	return r.err
}

func TestCheckerAnnouncesSeedAndChanges(t *testing.T) {
	t.Parallel()
	src := &seqSource{prices: []any{1.29, 1.29, ErrPriceNotFound, 1.39, 1.19}}
	note := &recordNotifier{}
	c := NewChecker(CheckerConfig{Name: "milk", Label: "Mimosa Protein Milk", URL: "http://x"}, src, &countGate{n: 4}, note)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		"Current Mimosa Protein Milk price is 1.29 € 🥛🐄",
		"Mimosa Protein Milk price went from 1.29 to 1.39! 🥛🐄😔",
		"Mimosa Protein Milk price went from 1.39 to 1.19! 🥛🐄😊",
	}
	if len(note.msgs) != len(want) {
		t.Fatalf("messages = %q, want %q", note.msgs, want)
	}
	for i := range want {
		if note.msgs[i] != want[i] {
			t.Errorf("msg[%d] = %q, want %q", i, note.msgs[i], want[i])
		}
	}
	if v, ok := c.Last(); !ok || v != 1.19 {
		t.Fatalf("Last = %v, %v", v, ok)
	}
}

func TestCheckerDisabledSkipsInitialAnnouncement(t *testing.T) {
	t.Parallel()
	src := &seqSource{prices: []any{2.0}}
	note := &recordNotifier{err: errors.New("chat down")}
	c := NewChecker(CheckerConfig{Name: "milk"}, src, &countGate{n: 0}, note, WithEnabled(func() bool { return false }))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(note.msgs) != 0 {
		t.Fatalf("disabled checker sent %q", note.msgs)
	}
	if _, ok := c.Last(); ok {
		t.Fatal("disabled checker should not have fetched")
	}
}

func TestCheckerStopsOnContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gate := gateFunc(func(ctx context.Context, name string) error { return ctx.Err() })
	c := NewChecker(CheckerConfig{Name: "milk"}, &seqSource{}, gate, nil, WithEnabled(func() bool { return false }))
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
}

type gateFunc func(ctx context.Context, name string) error

func (f gateFunc) Wait(ctx context.Context, name string) error { return f(ctx, name) }
