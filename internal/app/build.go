package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"screenqa/internal/capture"
	"screenqa/internal/config"
	"screenqa/internal/guard"
	"screenqa/internal/pipeline"
	"screenqa/internal/provider"
	"screenqa/internal/sink"
	"screenqa/internal/storage"
	"screenqa/internal/transport"
	"screenqa/pkg/logx"
)

// ErrNoProviders means every requested provider was excluded at startup.
var ErrNoProviders = errors.New("no providers enabled")

func buildSampler(cfg config.CaptureConfig, env config.Env) (capture.Sampler, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "file":
		return capture.FileSampler{Path: cfg.File}, nil
	case "", "command":
		return capture.NewCommandSampler(capture.CommandConfig{
			RegionCmd: cfg.RegionCmd,
			FullCmd:   cfg.FullCmd,
			OCRCmd:    cfg.OCRCommand(env),
			TempDir:   cfg.TempDir,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sampler %q", cfg.Sampler)
	}
}

func buildRegion(cfg config.CaptureConfig) (*capture.Region, error) {
	s := strings.TrimSpace(cfg.Region)
	if s == "" {
		return nil, nil
	}
	r, err := capture.ParseRegion(s)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// buildProviders turns the enabled provider entries into a registry.
// Providers without credentials are excluded and logged; none left is fatal.
func buildProviders(cfg *config.Config, env config.Env, log logx.Logger) (*provider.Registry, error) {
	specs := make([]provider.Spec, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if !p.IsEnabled() {
			continue
		}
		specs = append(specs, provider.Spec{
			ID:        p.ID,
			Kind:      p.Kind,
			BaseURL:   p.BaseURL,
			Model:     p.ModelName(env),
			APIKey:    p.Key(env),
			Prompt:    p.Prompt,
			MaxTokens: p.MaxTokens,
			Reply:     p.Reply,
			Delay:     config.Duration(p.Delay, 0),
		})
	}
	reg, excluded := provider.Build(specs, &http.Client{})
	for _, ex := range excluded {
		log.Warn("provider excluded", logx.String("provider", ex.ID), logx.Err(ex.Err))
	}
	if reg.Len() == 0 {
		return nil, ErrNoProviders
	}
	return reg, nil
}

func dispatcherConfig(cfg *config.Config, region *capture.Region) pipeline.DispatcherConfig {
	pc := cfg.Pipeline
	base := config.Duration(pc.Retry.Base, 500*time.Millisecond)
	maxDelay := config.Duration(pc.Retry.MaxDelay, 15*time.Second)
	policy := func(p config.ProviderConfig) guard.Policy {
		return guard.Policy{Retries: pc.Retries(p), Base: base, MaxDelay: maxDelay}
	}

	per := make(map[string]pipeline.ProviderOptions, len(cfg.Providers))
	for _, p := range cfg.Providers {
		per[p.ID] = pipeline.ProviderOptions{
			Timeout: config.Duration(p.Timeout, 0),
			Retry:   policy(p),
		}
	}
	return pipeline.DispatcherConfig{
		Interval:        cfg.Interval(),
		Region:          region,
		CaptureTimeout:  config.Duration(pc.CaptureTimeout, config.Duration(cfg.Capture.Timeout, pipeline.DefaultCaptureTimeout)),
		ProviderTimeout: config.Duration(pc.ProviderTimeout, pipeline.DefaultProviderTimeout),
		Retry:           policy(config.ProviderConfig{}),
		PerProvider:     per,
	}
}

func breakerConfig(c config.BreakerConfig) guard.BreakerConfig {
	return guard.BreakerConfig{
		Trip:       c.Trip,
		BaseDelay:  config.Duration(c.BaseDelay, 0),
		MaxDelay:   config.Duration(c.MaxDelay, 0),
		ResetAfter: config.Duration(c.ResetAfter, 0),
	}
}

func storageConfig(c *config.StorageConfig) (storage.Config, error) {
	if c == nil {
		return storage.Config{}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	path := strings.TrimSpace(c.Path)
	if (driver == "sqlite" || driver == "sqlite3") && path == "" {
		return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: config.Duration(c.BusyTimeout, 0),
	}, nil
}

// sinkSet is what buildSinks produced: the ordered sinks, the capture
// recorders and everything that needs closing on shutdown.
type sinkSet struct {
	sinks     []pipeline.Sink
	recorders []pipeline.CaptureRecorder
	closers   []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

type sinkDeps struct {
	cfg    *config.Config
	env    config.Env
	region *capture.Region
	stdout io.Writer
	sender transport.Sender // nil without a telegram token
	store  storage.Store
	runID  string
	log    logx.Logger
}

// buildSinks assembles sinks in delivery order. Optional sinks whose
// settings are incomplete are disabled with a warning; only a capture log
// that cannot be opened is fatal.
func buildSinks(d sinkDeps) (sinkSet, error) {
	var set sinkSet
	sc := d.cfg.Sinks
	log := d.log

	if sc.ConsoleEnabled() {
		set.sinks = append(set.sinks, sink.NewConsole(d.stdout))
	}

	if sc.Log.IsEnabled() {
		path := strings.TrimSpace(sc.Log.Path)
		if path == "" {
			path = config.DefaultLogPath
		}
		cl, err := sink.OpenCaptureLog(path, d.region, sc.Log.Truncate)
		if err != nil {
			return sinkSet{}, err
		}
		set.sinks = append(set.sinks, cl)
		set.recorders = append(set.recorders, cl)
		set.closers = append(set.closers, namedCloser{"capture log", cl})
		log.Info("capture log enabled", logx.String("path", path))
	}

	if d.store != nil && sc.History {
		h := sink.NewHistory(d.store, d.runID)
		set.sinks = append(set.sinks, h)
		set.recorders = append(set.recorders, h)
	}

	if sc.Desktop.Enabled {
		n := sink.NewSystemNotifier()
		set.sinks = append(set.sinks, sink.NewDesktop(n, sc.Desktop.Preview))
		if c, ok := n.(io.Closer); ok {
			set.closers = append(set.closers, namedCloser{"desktop", c})
		}
	}

	if sc.Email.Enabled {
		ec := sc.Email.Resolve(d.env)
		e, err := sink.NewEmail(sink.EmailConfig{
			Host:     ec.Host,
			Port:     ec.Port,
			Username: ec.Username,
			Password: ec.Password,
			From:     ec.From,
			To:       ec.To,
			UseTLS:   ec.UseTLS != nil && *ec.UseTLS,
			Timeout:  config.Duration(ec.Timeout, 0),
		})
		if err != nil {
			log.Warn("email notifications disabled", logx.Err(err))
		} else {
			set.sinks = append(set.sinks, e)
			log.Info("email notifications enabled", logx.String("to", ec.To))
		}
	}

	if sc.Telegram.Enabled {
		if d.sender == nil {
			log.Warn("telegram sink disabled: no bot token")
		} else {
			to := transport.ChatTarget{ChatID: sc.Telegram.ChatID, ThreadID: sc.Telegram.ThreadID}
			set.sinks = append(set.sinks, sink.NewTelegram(d.sender, to, sc.Telegram.Silent))
		}
	}

	if sc.MQTT.Enabled {
		mc := sc.MQTT
		clientID := mc.ClientID
		if clientID == "" {
			clientID = "screenqa-" + shortID(d.runID)
		}
		m, err := sink.DialMQTT(sink.MQTTConfig{
			Broker:   mc.Broker,
			ClientID: clientID,
			Username: mc.Username,
			Password: mc.Password,
			Topic:    mc.Topic,
			QoS:      byte(mc.QoS),
			Retained: mc.Retained,
			Timeout:  config.Duration(mc.Timeout, 0),
		}, log)
		if err != nil {
			log.Warn("mqtt sink disabled", logx.Err(err))
		} else {
			set.sinks = append(set.sinks, m)
			set.closers = append(set.closers, namedCloser{"mqtt", m})
		}
	}

	return set, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
