package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pricebot/internal/lifecycle"
	"pricebot/internal/price"
	"pricebot/internal/transport/telegram/router"
	logx "pricebot/pkg/logx"
)

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "version",
			Description: "show the bot version",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pricebot "+Version)
			},
		},
		{
			Name:        "price",
			Description: "fetch the current price",
			Usage:       "/price [worker]",
			Handle:      a.cmdPrice,
		},
		{
			Name:        "services",
			Aliases:     []string{"status"},
			Description: "list workers and their state",
			Handle:      a.cmdServices,
		},
		{
			Name:        "enable",
			Description: "resume a worker",
			Usage:       "/enable <worker>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.toggleHandler(true),
		},
		{
			Name:        "disable",
			Description: "pause a worker",
			Usage:       "/disable <worker>",
			Access:      router.AccessOwnerOnly,
			Handle:      a.toggleHandler(false),
		},
	}
}

func (a *App) cmdPrice(ctx context.Context, req *router.Request) error {
	var name string
	switch {
	case len(req.Args) > 0:
		name = req.Args[0]
	default:
		names := a.checkerNames()
		if len(names) != 1 {
			sort.Strings(names)
			return req.Reply(ctx, "Usage: /price <worker>\nWorkers: "+strings.Join(names, ", "))
		}
		name = names[0]
	}
	c, ok := a.checker(name)
	if !ok {
		return fmt.Errorf("unknown worker %q", name)
	}
	v, err := c.Current(ctx)
	if err != nil {
		req.Logger.Warn("price fetch failed", logx.String("worker", name), logx.Err(err))
		return fmt.Errorf("could not fetch the %s price", c.Label())
	}
	return req.Reply(ctx, fmt.Sprintf("Current %s price is '%s' €", c.Label(), price.Format(v)))
}

func (a *App) cmdServices(ctx context.Context, req *router.Request) error {
	if a.services == nil || a.services.Len() == 0 {
		return req.Reply(ctx, "No workers registered.")
	}
	var b strings.Builder
	for _, s := range a.services.Snapshot() {
		b.WriteString(formatServiceLine(s))
		b.WriteByte('\n')
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}

func formatServiceLine(s lifecycle.ServiceInfo) string {
	icon := "🟢"
	if !s.Enabled {
		icon = "⏸"
	}
	line := fmt.Sprintf("%s %s: %s", icon, s.Name, s.State.String())
	if s.Pace != "" {
		line += " (" + s.Pace + ")"
	}
	return line
}

func (a *App) toggleHandler(enabled bool) router.HandlerFunc {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	return func(ctx context.Context, req *router.Request) error {
		if len(req.Args) != 1 {
			return req.Reply(ctx, "Usage: /"+verb+" <worker>")
		}
		if a.services == nil {
			return errors.New("workers are not running")
		}
		name := req.Args[0]
		changed, err := a.services.SetEnabled(ctx, name, enabled)
		if errors.Is(err, lifecycle.ErrServiceNotFound) {
			return fmt.Errorf("unknown worker %q", name)
		}
		if err != nil {
			return err
		}
		if !changed {
			return req.Reply(ctx, fmt.Sprintf("%s is already %sd.", name, verb))
		}
		req.Logger.Info("worker toggled", logx.String("worker", name), logx.Bool("enabled", enabled))
		return req.Reply(ctx, fmt.Sprintf("%s %sd.", name, verb))
	}
}
