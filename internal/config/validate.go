package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"pricebot/internal/lifecycle"
)

// Validate checks the config for values that would fail at runtime.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add("telegram.token: required (or set %s)", EnvTelegramToken)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory", "none":
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn: required for driver %q", c.Storage.Driver)
		}
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if n := c.Notifier; n != nil {
		for field, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(field, raw); err != nil {
				errs = append(errs, err)
			}
		}
		if n.RetryMax < 0 {
			add("notifier.retry_max: must be >= 0")
		}
	}

	seen := map[string]bool{}
	for i, w := range c.Workers {
		p := fmt.Sprintf("workers[%d]", i)
		name := strings.TrimSpace(w.Name)
		if name == "" {
			add("%s.name: required", p)
		} else if seen[name] {
			add("%s.name: duplicate worker %q", p, name)
		}
		seen[name] = true
		if w.KindOrDefault() != "price" {
			add("%s.kind: unsupported kind %q", p, w.Kind)
		}
		if u, err := url.Parse(w.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("%s.url: must be an absolute http(s) URL", p)
		}
		if _, err := lifecycle.ParsePace(w.Every); err != nil {
			add("%s.every: %v", p, err)
		}
		if _, err := ParseDurationField(p+".timeout", w.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
