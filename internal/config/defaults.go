package config

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLogPath         = "scraped_content.txt"
	DefaultGrace           = 10 * time.Second
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultPruneSpec       = "@every 1h"
	DefaultReportSpec      = "@every 1h"
	DefaultEmailPort       = 587
	DefaultCacheSize       = 256
	DefaultProviderRetries = 1
)

// Env looks up environment variables. os.Getenv in production.
type Env func(string) string

func (e Env) get(key string) string {
	if e == nil || key == "" {
		return ""
	}
	return strings.TrimSpace(e(key))
}

// Default is the configuration used when no file is given: the three known
// providers keyed from the environment, console and capture log sinks.
func Default() *Config {
	return &Config{
		Providers: []ProviderConfig{
			{ID: "gemini", APIKeyEnv: "GOOGLE_API_KEY_ANALYZER", ModelEnv: "GEMINI_MODEL_NAME"},
			{ID: "chatgpt", APIKeyEnv: "OPENAI_API_KEY"},
			{ID: "perplexity", APIKeyEnv: "PERPLEXITY_API_KEY"},
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

var defaultKeyEnv = map[string]string{
	"gemini":     "GOOGLE_API_KEY_ANALYZER",
	"chatgpt":    "OPENAI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"perplexity": "PERPLEXITY_API_KEY",
}

// Key resolves the API key: inline first, then api_key_env, then the
// well-known variable for the provider id.
func (p ProviderConfig) Key(env Env) string {
	if k := strings.TrimSpace(p.APIKey); k != "" {
		return k
	}
	if p.APIKeyEnv != "" {
		return env.get(p.APIKeyEnv)
	}
	return env.get(defaultKeyEnv[strings.ToLower(p.ID)])
}

// ModelName resolves the model: inline first, then model_env.
// GEMINI_MODEL_NAME applies to the gemini provider by default.
func (p ProviderConfig) ModelName(env Env) string {
	if m := strings.TrimSpace(p.Model); m != "" {
		return m
	}
	if p.ModelEnv != "" {
		return env.get(p.ModelEnv)
	}
	if strings.EqualFold(p.ID, "gemini") {
		return env.get("GEMINI_MODEL_NAME")
	}
	return ""
}

// Resolve fills unset fields from EMAIL_* variables.
func (e EmailSinkConfig) Resolve(env Env) EmailSinkConfig {
	if e.Host == "" {
		e.Host = env.get("EMAIL_HOST")
	}
	if e.Port <= 0 {
		if n, err := strconv.Atoi(env.get("EMAIL_PORT")); err == nil && n > 0 {
			e.Port = n
		} else {
			e.Port = DefaultEmailPort
		}
	}
	if e.Username == "" {
		e.Username = env.get("EMAIL_HOST_USER")
	}
	if e.Password == "" {
		key := e.PasswordEnv
		if key == "" {
			key = "EMAIL_HOST_PASSWORD"
		}
		e.Password = env.get(key)
	}
	if e.UseTLS == nil {
		v := true
		if s := env.get("EMAIL_USE_TLS"); s != "" {
			v = strings.EqualFold(s, "true")
		}
		e.UseTLS = &v
	}
	return e
}

// BotToken resolves the Telegram token (default variable TELEGRAM_BOT_TOKEN).
func (t TelegramConfig) BotToken(env Env) string {
	if s := strings.TrimSpace(t.Token); s != "" {
		return s
	}
	key := t.TokenEnv
	if key == "" {
		key = "TELEGRAM_BOT_TOKEN"
	}
	return env.get(key)
}

// OCRCommand returns the configured OCR command, or the tesseract default
// honoring TESSERACT_CMD.
func (c CaptureConfig) OCRCommand(env Env) []string {
	if len(c.OCRCmd) > 0 {
		return c.OCRCmd
	}
	bin := env.get("TESSERACT_CMD")
	if bin == "" {
		bin = "tesseract"
	}
	return []string{bin, "{in}", "stdout"}
}

// Interval returns the capture period.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Grace returns shutdown.grace, defaulting to DefaultGrace.
func (c *Config) Grace() time.Duration {
	d, err := ParseDurationOrDefault("shutdown.grace", c.Shutdown.Grace, DefaultGrace)
	if err != nil {
		return DefaultGrace
	}
	return d
}

// RetentionPeriod returns maintenance.retention, defaulting to DefaultRetention.
func (m MaintenanceConfig) RetentionPeriod() time.Duration {
	d, err := ParseDurationOrDefault("maintenance.retention", m.Retention, DefaultRetention)
	if err != nil {
		return DefaultRetention
	}
	return d
}

// Spec returns the cron spec for a job: "" -> def, "off" -> "".
func Spec(raw, def string) string {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "":
		return def
	case "off", "none", "disabled":
		return ""
	}
	return s
}

// Retries returns the per-provider override or the pipeline default.
func (p PipelineConfig) Retries(pc ProviderConfig) int {
	if pc.Retries != nil {
		return *pc.Retries
	}
	if p.Retry.Max != nil {
		return *p.Retry.Max
	}
	return DefaultProviderRetries
}

// Duration parses an already validated duration field, returning def when
// the field is empty or invalid.
func Duration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
