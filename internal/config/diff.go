package config

import (
	"encoding/json"
	"reflect"
	"strings"

	"screenqa/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ between two
// configs and safe attrs describing the logging section. Secrets are never
// included.
func SummarizeChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"interval_seconds", oldCfg.IntervalSeconds, newCfg.IntervalSeconds},
		{"capture", oldCfg.Capture, newCfg.Capture},
		{"providers", oldCfg.Providers, newCfg.Providers},
		{"pipeline", oldCfg.Pipeline, newCfg.Pipeline},
		{"sinks", oldCfg.Sinks, newCfg.Sinks},
		{"telegram", oldCfg.Telegram, newCfg.Telegram},
		{"logging", oldCfg.Logging, newCfg.Logging},
		{"storage", oldCfg.Storage, newCfg.Storage},
		{"maintenance", oldCfg.Maintenance, newCfg.Maintenance},
		{"shutdown", oldCfg.Shutdown, newCfg.Shutdown},
	}
	for _, s := range sections {
		if !sameJSON(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}

	l := newCfg.Logging
	attrs = append(attrs,
		logx.String("changed", strings.Join(changed, ",")),
		logx.String("logx.level", l.Level),
		logx.Bool("logx.console", l.Console),
		logx.Bool("logx.file_enabled", l.File.Enabled),
		logx.Bool("logx.telegram_enabled", l.Telegram.Enabled),
	)
	return changed, attrs
}

// RestartRequired filters changed down to the sections that are only read
// at startup.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s != "logging" {
			out = append(out, s)
		}
	}
	return out
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}
