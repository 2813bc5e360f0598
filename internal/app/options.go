package app

import (
	"fmt"
	"io"
	"strings"

	"screenqa/internal/capture"
	"screenqa/internal/config"
)

// Options carries the command line. Zero fields leave the config alone.
type Options struct {
	// ConfigPath is a JSON or YAML file. Empty runs on config.Default().
	ConfigPath string

	Interval  int
	Providers []string // restrict to these ids, in this order
	Notify    bool     // enable desktop notifications
	EmailTo   string   // enable email to this recipient
	Region    *capture.Region

	Env    config.Env
	Stdout io.Writer
}

// applyOverrides folds command-line settings into cfg.
func applyOverrides(cfg *config.Config, o Options) {
	if o.Interval > 0 {
		cfg.IntervalSeconds = o.Interval
	}
	if o.Region != nil {
		cfg.Capture.Region = regionFlag(*o.Region)
	}
	if o.Notify {
		cfg.Sinks.Desktop.Enabled = true
	}
	if to := strings.TrimSpace(o.EmailTo); to != "" {
		cfg.Sinks.Email.Enabled = true
		cfg.Sinks.Email.To = to
	}
	if len(o.Providers) > 0 {
		cfg.Providers = selectProviders(cfg.Providers, o.Providers)
	}
}

// selectProviders keeps the named providers in the given order. Names not
// present in the config get an entry with defaults for that id.
func selectProviders(have []config.ProviderConfig, want []string) []config.ProviderConfig {
	byID := make(map[string]config.ProviderConfig, len(have))
	for _, p := range have {
		byID[strings.ToLower(p.ID)] = p
	}
	enabled := true
	out := make([]config.ProviderConfig, 0, len(want))
	seen := map[string]bool{}
	for _, raw := range want {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p, ok := byID[id]
		if !ok {
			p = config.ProviderConfig{ID: id}
		}
		p.Enabled = &enabled
		out = append(out, p)
	}
	return out
}

func regionFlag(r capture.Region) string {
	return fmt.Sprintf("%d,%d,%d,%d", r.Top, r.Left, r.Width, r.Height)
}
