package app

import (
	"context"
	"strings"
	"time"

	"pricebot/internal/config"
	logx "pricebot/pkg/logx"
)

// reloadLoop applies hot-reloaded configs. Settings listed by
// config.RestartOnly are logged and left as they are.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if pending := config.RestartOnly(oldCfg, newCfg); len(pending) > 0 {
		a.log.Warn("config changes require a restart", logx.String("sections", strings.Join(pending, ",")))
	}

	// Target first so Apply doesn't warn when Telegram logging is enabled.
	a.logs.SetTelegramTarget(chatTarget(newCfg))
	a.logs.Apply(newCfg.LogConfig())

	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	prevNotif := a.notif.Enabled()
	ncfg := newCfg.NotifyConfig()
	a.notif.Apply(ncfg, chatTarget(newCfg))
	switch {
	case prevNotif && !ncfg.Enabled:
		a.log.Info("notifier disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	case !prevNotif && ncfg.Enabled:
		a.log.Info("notifier enabled via config")
		a.notif.Start(ctx)
	}

	a.msrv.Reconfigure(ctx, newCfg.MetricsServerConfig())

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
