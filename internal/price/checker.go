package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pricebot/internal/eventbus"
	"pricebot/internal/lifecycle"
	"pricebot/internal/metrics"
	logx "pricebot/pkg/logx"
)

// Source fetches a price from a URL. *Fetcher satisfies it.
type Source interface {
	Fetch(ctx context.Context, url string) (float64, error)
}

// Gate blocks until the named worker may run its next cycle.
// *lifecycle.Manager satisfies it.
type Gate interface {
	Wait(ctx context.Context, name string) error
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type CheckerConfig struct {
	Name    string
	Label   string
	URL     string
	Timeout time.Duration // per fetch; 0 means the fetcher's own timeout
}

// Checker watches one product price and reports changes.
type Checker struct {
	cfg     CheckerConfig
	src     Source
	gate    Gate
	notify  Notifier
	enabled func() bool
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.Mutex
	last    float64
	hasLast bool
}

type CheckerOption func(*Checker)

func WithCheckerLogger(log logx.Logger) CheckerOption { return func(c *Checker) { c.log = log } }
func WithCheckerBus(b eventbus.Bus) CheckerOption     { return func(c *Checker) { c.bus = b } }

// WithEnabled reports whether the worker is enabled when Run starts. A
// disabled checker skips the initial announcement until it first runs.
func WithEnabled(fn func() bool) CheckerOption { return func(c *Checker) { c.enabled = fn } }

func NewChecker(cfg CheckerConfig, src Source, gate Gate, notify Notifier, opts ...CheckerOption) *Checker {
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	c := &Checker{cfg: cfg, src: src, gate: gate, notify: notify, log: logx.Nop()}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(logx.String("worker", cfg.Name))
	return c
}

func (c *Checker) Name() string  { return c.cfg.Name }
func (c *Checker) Label() string { return c.cfg.Label }
func (c *Checker) URL() string   { return c.cfg.URL }

// Last returns the last observed price.
func (c *Checker) Last() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Run is the worker body. It returns nil when the worker is withdrawn from
// the registry and ctx.Err() on shutdown.
func (c *Checker) Run(ctx context.Context) error {
	c.log.Info("price checker started", logx.String("url", c.cfg.URL))
	if c.enabled == nil || c.enabled() {
		c.check(ctx)
	}
	for {
		if err := c.gate.Wait(ctx, c.cfg.Name); err != nil {
			if errors.Is(err, lifecycle.ErrServiceNotFound) {
				c.log.Warn("service gone, stopping checker")
				return nil
			}
			return err
		}
		c.check(ctx)
	}
}

// Current fetches the price once without touching the checker's state.
func (c *Checker) Current(ctx context.Context) (float64, error) {
	return c.fetch(ctx)
}

func (c *Checker) fetch(ctx context.Context) (float64, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	return c.src.Fetch(ctx, c.cfg.URL)
}

// check runs one cycle. The first successful fetch announces the current
// price; later ones announce only changes.
func (c *Checker) check(ctx context.Context) {
	v, err := c.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.IncPriceCheck(c.cfg.Name, "error")
			c.log.Warn("price fetch failed", logx.Err(err))
		}
		return
	}
	metrics.IncPriceCheck(c.cfg.Name, "ok")
	metrics.SetLastPrice(c.cfg.Name, v)

	c.mu.Lock()
	old, had := c.last, c.hasLast
	c.last, c.hasLast = v, true
	c.mu.Unlock()

	var msg string
	switch {
	case !had:
		msg = CurrentMessage(c.cfg.Label, v)
		c.log.Info("price seeded", logx.Float64("price", v))
	case v != old:
		msg = ChangeMessage(c.cfg.Label, old, v)
		metrics.IncPriceCheck(c.cfg.Name, "changed")
		c.log.Info("price changed", logx.Float64("old", old), logx.Float64("new", v))
		if c.bus != nil {
			c.bus.Publish(eventbus.Event{Type: eventbus.TypePriceChanged, Data: eventbus.PriceChange{Service: c.cfg.Name, Old: old, New: v}})
		}
	default:
		c.log.Debug("price unchanged", logx.Float64("price", v))
		return
	}
	if c.notify == nil {
		return
	}
	if err := c.notify.Notify(ctx, msg); err != nil {
		c.log.Error("notify failed", logx.Err(err))
	}
}

func CurrentMessage(label string, v float64) string {
	return fmt.Sprintf("Current %s price is %s € 🥛🐄", label, Format(v))
}

func ChangeMessage(label string, old, v float64) string {
	mood := "😊"
	if v > old {
		mood = "😔"
	}
	return fmt.Sprintf("%s price went from %s to %s! 🥛🐄%s", label, Format(old), Format(v), mood)
}
