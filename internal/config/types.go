package config

import "strings"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`

	// Notifier defaults to enabled when the section is omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Workers []WorkerConfig `json:"workers"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives price alerts and, if enabled, log lines.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the durable service store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/pricebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres only (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the alert pipeline. Durations are Go duration strings.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// MetricsConfig controls the optional Prometheus endpoint.
// A non-loopback Addr requires Token or AllowInsecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
	Path          string `json:"path,omitempty"` // default: "/metrics"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// WorkerConfig declares one price watcher.
//
// Every accepts a Go duration ("4h"), HH:MM ("04:00") or a cron expression
// ("0 */4 * * *"). Empty means the worker never sleeps between cycles.
type WorkerConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"` // default: "price"
	Label    string `json:"label,omitempty"`
	URL      string `json:"url"`
	Selector string `json:"selector,omitempty"`
	Every    string `json:"every"`
	// Enabled is the default for a worker with no durable record yet.
	// Omitted means true.
	Enabled *bool  `json:"enabled,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

func (w WorkerConfig) DefaultEnabled() bool { return w.Enabled == nil || *w.Enabled }

func (w WorkerConfig) KindOrDefault() string {
	if k := strings.ToLower(strings.TrimSpace(w.Kind)); k != "" {
		return k
	}
	return "price"
}

func (c *Config) NotifierOrDefault() NotifierConfig {
	if c.Notifier == nil {
		return NotifierConfig{Enabled: true}
	}
	return *c.Notifier
}
