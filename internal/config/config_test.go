package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "interval_seconds": 15,
  "capture": {"sampler": "file", "file": "/tmp/q.txt", "region": "10,20,300,400"},
  "providers": [
    {"id": "gemini", "api_key_env": "MY_GEMINI_KEY"},
    {"id": "local", "kind": "static", "reply": "42", "delay": "1s"}
  ],
  "pipeline": {"provider_timeout": "30s", "retry": {"max": 2}},
  "sinks": {"desktop": {"enabled": true}, "history": true},
  "logging": {"level": "debug", "console": true},
  "storage": {"driver": "sqlite", "path": "./h.db"},
  "shutdown": {"grace": "5s"}
}`

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("cfg.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Interval() != 15*time.Second {
		t.Fatalf("interval: %v", cfg.Interval())
	}
	if len(cfg.Providers) != 2 || cfg.Providers[1].Kind != "static" {
		t.Fatalf("providers: %+v", cfg.Providers)
	}
	if cfg.Pipeline.Retries(cfg.Providers[0]) != 2 {
		t.Fatalf("retries: %d", cfg.Pipeline.Retries(cfg.Providers[0]))
	}
	if cfg.Grace() != 5*time.Second {
		t.Fatalf("grace: %v", cfg.Grace())
	}
	if !cfg.Sinks.ConsoleEnabled() || !cfg.Sinks.Log.IsEnabled() {
		t.Fatalf("console and log sinks default to enabled")
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	y := `
interval_seconds: 20
providers:
  - id: chatgpt
    model: gpt-4o
sinks:
  console: false
  mqtt:
    enabled: true
    broker: localhost:1883
    qos: 1
`
	cfg, err := Decode("cfg.yaml", []byte(y))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Sinks.ConsoleEnabled() {
		t.Fatalf("console should be disabled")
	}
	if cfg.Sinks.MQTT.QoS != 1 || cfg.Providers[0].Model != "gpt-4o" {
		t.Fatalf("decoded: %+v", cfg)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	if _, err := Decode("c.json", []byte(`{"interval_seconds": 5, "bogus": 1}`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{"interval_seconds": 5}{}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Capture:   CaptureConfig{Sampler: "camera", Region: "1,2"},
		Providers: []ProviderConfig{{ID: "a"}, {ID: "a"}, {ID: ""}},
		Pipeline:  PipelineConfig{ProviderTimeout: "soon"},
		Sinks: SinksConfig{
			MQTT:     MQTTSinkConfig{Enabled: true, QoS: 3},
			Telegram: TelegramSinkConfig{Enabled: true},
			History:  true,
		},
		Logging: LoggingConfig{Level: "loud"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{
		"interval_seconds",
		"capture.sampler",
		"capture.region",
		"duplicate",
		"providers[2].id",
		"pipeline.provider_timeout",
		"sinks.mqtt.broker",
		"sinks.mqtt.qos",
		"sinks.telegram.chat_id",
		"sinks.history",
		"logging.level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in:\n%v", want, err)
		}
	}
}

func envOf(m map[string]string) Env {
	return func(k string) string { return m[k] }
}

func TestProviderKeyResolution(t *testing.T) {
	t.Parallel()

	env := envOf(map[string]string{
		"GOOGLE_API_KEY_ANALYZER": "g-key",
		"GEMINI_MODEL_NAME":       "gemini-pro",
		"CUSTOM":                  " c-key ",
	})
	cases := []struct {
		p    ProviderConfig
		want string
	}{
		{ProviderConfig{ID: "gemini"}, "g-key"},
		{ProviderConfig{ID: "gemini", APIKey: "inline"}, "inline"},
		{ProviderConfig{ID: "x", APIKeyEnv: "CUSTOM"}, "c-key"},
		{ProviderConfig{ID: "perplexity"}, ""},
	}
	for _, tc := range cases {
		if got := tc.p.Key(env); got != tc.want {
			t.Fatalf("Key(%+v)=%q want %q", tc.p, got, tc.want)
		}
	}
	if got := (ProviderConfig{ID: "gemini"}).ModelName(env); got != "gemini-pro" {
		t.Fatalf("model: %q", got)
	}
	if got := (ProviderConfig{ID: "chatgpt"}).ModelName(env); got != "" {
		t.Fatalf("model: %q", got)
	}
}

func TestEmailResolve(t *testing.T) {
	t.Parallel()

	env := envOf(map[string]string{
		"EMAIL_HOST":          "smtp.example.com",
		"EMAIL_HOST_USER":     "bot@example.com",
		"EMAIL_HOST_PASSWORD": "pw",
		"EMAIL_USE_TLS":       "False",
	})
	e := EmailSinkConfig{To: "me@example.com"}.Resolve(env)
	if e.Host != "smtp.example.com" || e.Port != DefaultEmailPort || e.Username != "bot@example.com" || e.Password != "pw" {
		t.Fatalf("resolved: %+v", e)
	}
	if e.UseTLS == nil || *e.UseTLS {
		t.Fatalf("use_tls should be false")
	}

	e = EmailSinkConfig{Port: 2525}.Resolve(envOf(nil))
	if e.Port != 2525 || e.UseTLS == nil || !*e.UseTLS {
		t.Fatalf("defaults: %+v", e)
	}
}

func TestSpec(t *testing.T) {
	t.Parallel()

	if Spec("", "@every 1h") != "@every 1h" || Spec(" off ", "@every 1h") != "" || Spec("0 3 * * *", "x") != "0 3 * * *" {
		t.Fatalf("spec resolution")
	}
}

func TestOCRCommand(t *testing.T) {
	t.Parallel()

	got := CaptureConfig{}.OCRCommand(envOf(map[string]string{"TESSERACT_CMD": "/opt/tess"}))
	if strings.Join(got, " ") != "/opt/tess {in} stdout" {
		t.Fatalf("ocr: %v", got)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	a, _ := Decode("a.json", []byte(sampleJSON))
	b, _ := Decode("b.json", []byte(sampleJSON))
	b.Logging.Level = "warn"
	b.IntervalSeconds = 30
	changed, _ := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "interval_seconds,logging" {
		t.Fatalf("changed: %v", changed)
	}
	if r := RestartRequired(changed); len(r) != 1 || r[0] != "interval_seconds" {
		t.Fatalf("restart: %v", r)
	}
}

func TestManagerWatchPublishesLoggingChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screenqa.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	updated := strings.Replace(sampleJSON, `"level": "debug"`, `"level": "warn"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("level: %q", cfg.Logging.Level)
		}
		if m.Get().Logging.Level != "warn" {
			t.Fatalf("not committed")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no config published")
	}
}
