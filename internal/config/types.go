package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("45s", "500ms"). Secrets may be
// given inline or through the matching *_env field naming an environment
// variable.
type Config struct {
	// IntervalSeconds is the capture period. Required, > 0.
	IntervalSeconds int `json:"interval_seconds"`

	Capture   CaptureConfig    `json:"capture"`
	Providers []ProviderConfig `json:"providers"`
	Pipeline  PipelineConfig   `json:"pipeline"`
	Sinks     SinksConfig      `json:"sinks"`

	// Telegram holds the bot credentials shared by the telegram sink and
	// the telegram log writer.
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	Storage     *StorageConfig    `json:"storage,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Shutdown    ShutdownConfig    `json:"shutdown"`
}

// CaptureConfig selects how samples are taken.
//
// Sampler is "command" (screenshot + OCR, the default) or "file" (read
// File on every tick). Region is "top,left,width,height"; empty means the
// full primary display. Command templates accept {left} {top} {width}
// {height} {out} / {in} placeholders and replace the platform defaults.
type CaptureConfig struct {
	Sampler   string   `json:"sampler,omitempty"`
	Region    string   `json:"region,omitempty"`
	File      string   `json:"file,omitempty"`
	Timeout   string   `json:"timeout,omitempty"`
	RegionCmd []string `json:"region_cmd,omitempty"`
	FullCmd   []string `json:"full_cmd,omitempty"`
	OCRCmd    []string `json:"ocr_cmd,omitempty"`
	TempDir   string   `json:"temp_dir,omitempty"`
}

// ProviderConfig is one answering backend. Providers run in list order.
//
// Kind defaults from ID ("gemini", "chatgpt"/"openai", "perplexity" are
// known; anything else must set kind). Enabled is a pointer so omission
// means enabled.
type ProviderConfig struct {
	ID        string `json:"id"`
	Kind      string `json:"kind,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model,omitempty"`
	ModelEnv  string `json:"model_env,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`

	// Static provider settings.
	Reply string `json:"reply,omitempty"`
	Delay string `json:"delay,omitempty"`

	// Per-provider overrides of pipeline defaults.
	Timeout string `json:"timeout,omitempty"`
	Retries *int   `json:"retries,omitempty"`
}

// IsEnabled reports whether the provider should be built.
func (p ProviderConfig) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// PipelineConfig tunes invocation and caching.
//
// Defaults:
//   - capture_timeout: "30s"
//   - provider_timeout: "45s"
//   - cache_size: 256
//   - retry: max 1, base "500ms", max_delay "15s"
//   - breaker: trip 5, base_delay "5s", max_delay "2m", reset_after "5m"
type PipelineConfig struct {
	CaptureTimeout  string        `json:"capture_timeout,omitempty"`
	ProviderTimeout string        `json:"provider_timeout,omitempty"`
	CacheSize       int           `json:"cache_size,omitempty"`
	Retry           RetryConfig   `json:"retry"`
	Breaker         BreakerConfig `json:"breaker"`
}

type RetryConfig struct {
	Max      *int   `json:"max,omitempty"`
	Base     string `json:"base,omitempty"`
	MaxDelay string `json:"max_delay,omitempty"`
}

// BreakerConfig controls the per-provider circuit breaker. Trip < 0
// disables it.
type BreakerConfig struct {
	Trip       int    `json:"trip,omitempty"`
	BaseDelay  string `json:"base_delay,omitempty"`
	MaxDelay   string `json:"max_delay,omitempty"`
	ResetAfter string `json:"reset_after,omitempty"`
}

type SinksConfig struct {
	// Console defaults to true.
	Console  *bool              `json:"console,omitempty"`
	Log      LogSinkConfig      `json:"log"`
	Desktop  DesktopSinkConfig  `json:"desktop"`
	Email    EmailSinkConfig    `json:"email"`
	Telegram TelegramSinkConfig `json:"telegram"`
	MQTT     MQTTSinkConfig     `json:"mqtt"`
	// History writes captures and results to storage when it is configured.
	History bool `json:"history,omitempty"`
}

func (s SinksConfig) ConsoleEnabled() bool { return s.Console == nil || *s.Console }

// LogSinkConfig is the capture log. Enabled defaults to true.
type LogSinkConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Path     string `json:"path,omitempty"` // default: scraped_content.txt
	Truncate bool   `json:"truncate,omitempty"`
}

func (l LogSinkConfig) IsEnabled() bool { return l.Enabled == nil || *l.Enabled }

type DesktopSinkConfig struct {
	Enabled bool `json:"enabled"`
	Preview int  `json:"preview,omitempty"`
}

// EmailSinkConfig falls back to EMAIL_HOST, EMAIL_PORT, EMAIL_HOST_USER,
// EMAIL_HOST_PASSWORD and EMAIL_USE_TLS for unset fields.
type EmailSinkConfig struct {
	Enabled     bool   `json:"enabled"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	PasswordEnv string `json:"password_env,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	UseTLS      *bool  `json:"use_tls,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

type TelegramSinkConfig struct {
	Enabled  bool  `json:"enabled"`
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	Silent   bool  `json:"silent,omitempty"`
}

type MQTTSinkConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic,omitempty"`
	QoS      int    `json:"qos,omitempty"`
	Retained bool   `json:"retained,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token,omitempty"`
	TokenEnv string `json:"token_env,omitempty"`
	// APIURL overrides the Bot API endpoint (local bot API servers).
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./screenqa.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// MaintenanceConfig schedules housekeeping. Specs are robfig/cron
// expressions ("@every 1h", "0 3 * * *"); an empty spec uses the default,
// "off" disables the job.
type MaintenanceConfig struct {
	Prune     string `json:"prune,omitempty"`
	Retention string `json:"retention,omitempty"` // default: 168h
	Report    string `json:"report,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

type ShutdownConfig struct {
	// Grace bounds how long shutdown waits for in-flight work. Default "10s".
	Grace string `json:"grace,omitempty"`
}
