package config

import (
	"time"

	"pricebot/internal/notifier"
	"pricebot/internal/observability/metricsrv"
	"pricebot/internal/storage"
	logx "pricebot/pkg/logx"
)

func (c *Config) LogConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func (c *Config) StoreConfig() storage.Config {
	return storage.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		DSN:         c.Storage.DSN,
		BusyTimeout: MustDuration(c.Storage.BusyTimeout, 0),
	}
}

func (c *Config) NotifyConfig() notifier.Config {
	n := c.NotifierOrDefault()
	return notifier.Config{
		Enabled:       n.Enabled,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     MustDuration(n.RetryBase, 0),
		RetryMaxDelay: MustDuration(n.RetryMaxDelay, 0),
		DedupWindow:   MustDuration(n.DedupWindow, 0),
	}
}

func (c *Config) PollTimeout() time.Duration {
	return MustDuration(c.Telegram.PollTimeout, 10*time.Second)
}

func (c *Config) MetricsServerConfig() metricsrv.Config {
	return metricsrv.Config{
		Enabled:       c.Metrics.Enabled,
		Addr:          c.Metrics.Addr,
		Path:          c.Metrics.Path,
		Token:         c.Metrics.Token,
		AllowInsecure: c.Metrics.AllowInsecure,
	}
}
