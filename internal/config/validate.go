package config

import (
	"errors"
	"fmt"
	"strings"

	"screenqa/internal/capture"
	"screenqa/pkg/logx"
)

// Validate checks the whole config and reports every problem at once.
// Provider credentials are not checked here; missing keys exclude a
// provider at startup instead of failing the config.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if c.IntervalSeconds <= 0 {
		add(errors.New("interval_seconds: must be a positive integer"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Capture.Sampler)) {
	case "", "command":
	case "file":
		if strings.TrimSpace(c.Capture.File) == "" {
			add(errors.New("capture.file: required for the file sampler"))
		}
	default:
		add(fmt.Errorf("capture.sampler: unknown sampler %q", c.Capture.Sampler))
	}
	if s := strings.TrimSpace(c.Capture.Region); s != "" {
		if _, err := capture.ParseRegion(s); err != nil {
			add(fmt.Errorf("capture.region: %w", err))
		}
	}
	dur("capture.timeout", c.Capture.Timeout)

	seen := map[string]bool{}
	for i, p := range c.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			add(fmt.Errorf("providers[%d].id: required", i))
			continue
		}
		if seen[id] {
			add(fmt.Errorf("providers[%d].id: duplicate %q", i, id))
		}
		seen[id] = true
		dur(fmt.Sprintf("providers[%d].delay", i), p.Delay)
		dur(fmt.Sprintf("providers[%d].timeout", i), p.Timeout)
		if p.Retries != nil && *p.Retries < 0 {
			add(fmt.Errorf("providers[%d].retries: must be >= 0", i))
		}
	}

	dur("pipeline.capture_timeout", c.Pipeline.CaptureTimeout)
	dur("pipeline.provider_timeout", c.Pipeline.ProviderTimeout)
	dur("pipeline.retry.base", c.Pipeline.Retry.Base)
	dur("pipeline.retry.max_delay", c.Pipeline.Retry.MaxDelay)
	dur("pipeline.breaker.base_delay", c.Pipeline.Breaker.BaseDelay)
	dur("pipeline.breaker.max_delay", c.Pipeline.Breaker.MaxDelay)
	dur("pipeline.breaker.reset_after", c.Pipeline.Breaker.ResetAfter)
	if c.Pipeline.CacheSize < 0 {
		add(errors.New("pipeline.cache_size: must be >= 0"))
	}
	if c.Pipeline.Retry.Max != nil && *c.Pipeline.Retry.Max < 0 {
		add(errors.New("pipeline.retry.max: must be >= 0"))
	}

	if c.Sinks.Desktop.Preview < 0 {
		add(errors.New("sinks.desktop.preview: must be >= 0"))
	}
	dur("sinks.email.timeout", c.Sinks.Email.Timeout)
	if c.Sinks.Telegram.Enabled && c.Sinks.Telegram.ChatID == 0 {
		add(errors.New("sinks.telegram.chat_id: required when enabled"))
	}
	if c.Sinks.MQTT.Enabled && strings.TrimSpace(c.Sinks.MQTT.Broker) == "" {
		add(errors.New("sinks.mqtt.broker: required when enabled"))
	}
	if q := c.Sinks.MQTT.QoS; q < 0 || q > 2 {
		add(fmt.Errorf("sinks.mqtt.qos: must be 0, 1 or 2 (got %d)", q))
	}
	dur("sinks.mqtt.timeout", c.Sinks.MQTT.Timeout)
	if c.Sinks.History && c.Storage == nil {
		add(errors.New("sinks.history: requires a storage section"))
	}

	dur("telegram.timeout", c.Telegram.Timeout)
	add(c.Logging.Validate())

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
		dur("storage.busy_timeout", c.Storage.BusyTimeout)
	}

	dur("maintenance.retention", c.Maintenance.Retention)
	dur("shutdown.grace", c.Shutdown.Grace)

	return errors.Join(errs...)
}

// Validate checks the live-reloadable logging section on its own.
func (l LoggingConfig) Validate() error {
	if !logx.ValidLevel(l.Level) {
		return fmt.Errorf("logging.level: unknown level %q", l.Level)
	}
	if l.Telegram.Enabled && !logx.ValidLevel(l.Telegram.MinLevel) {
		return fmt.Errorf("logging.telegram.min_level: unknown level %q", l.Telegram.MinLevel)
	}
	if l.Telegram.RatePerSec < 0 {
		return errors.New("logging.telegram.rate_per_sec: must be >= 0")
	}
	return nil
}

// LogConfig maps the logging section onto the logger's settings.
func (l LoggingConfig) LogConfig() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}
