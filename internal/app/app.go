package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenqa/internal/cache"
	"screenqa/internal/config"
	"screenqa/internal/eventbus"
	"screenqa/internal/guard"
	"screenqa/internal/maintenance"
	"screenqa/internal/pipeline"
	"screenqa/internal/runtime/supervisor"
	"screenqa/internal/stats"
	"screenqa/internal/storage"
	"screenqa/internal/systemd"
	"screenqa/internal/transport"
	"screenqa/internal/transport/telegram"
	"screenqa/pkg/logx"
)

// App wires the capture loop, the result consumer and the housekeeping
// around them. Build it with New, then Start and Stop it once.
type App struct {
	opts  Options
	cfg   *config.Config
	cfgm  *config.Manager
	runID string

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	sinks   sinkSet
	queue   *pipeline.Queue
	disp    *pipeline.Dispatcher
	cons    *pipeline.Consumer
	breaker *guard.Breaker
	bus     eventbus.Bus
	stats   *stats.Collector
	maint   *maintenance.Scheduler
	sd      *systemd.Notifier
	sup     *supervisor.Supervisor
	bg      *supervisor.Supervisor
	closing sync.Once

	consumerDone chan struct{}
}

// New loads the configuration, applies command-line overrides and builds
// every component. Nothing runs until Start.
func New(opts Options) (*App, error) {
	if opts.Env == nil {
		opts.Env = os.Getenv
	}
	if opts.Stdout == nil {
		opts.Stdout = logx.Stdout()
	}

	var (
		cfg  *config.Config
		cfgm *config.Manager
		err  error
	)
	if strings.TrimSpace(opts.ConfigPath) != "" {
		cfgm = config.NewManager(opts.ConfigPath)
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}
	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)

	var sender transport.Sender
	if tok := cfg.Telegram.BotToken(opts.Env); tok != "" {
		tg, err := telegram.New(telegram.Config{
			Token:   tok,
			URL:     cfg.Telegram.APIURL,
			Timeout: config.Duration(cfg.Telegram.Timeout, 0),
		}, bootLog.With(logx.String("comp", "telegram")))
		if err != nil {
			bootLog.Warn("telegram disabled", logx.Err(err))
		} else {
			sender = tg
		}
	}

	logs, log := logx.New(cfg.Logging.LogConfig(), sender)
	a := &App{
		opts:         opts,
		cfg:          cfg,
		cfgm:         cfgm,
		runID:        uuid.NewString(),
		logs:         logs,
		bus:          eventbus.New(),
		stats:        stats.New(),
		consumerDone: make(chan struct{}),
	}
	a.log = log.With(logx.String("run", shortID(a.runID)))
	if cfgm != nil {
		cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	}

	if err := a.build(sender); err != nil {
		a.closeResources()
		logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(sender transport.Sender) error {
	cfg, log := a.cfg, a.log

	reg, err := buildProviders(cfg, a.opts.Env, log)
	if err != nil {
		return err
	}
	log.Info("providers enabled", logx.Strs("providers", reg.IDs()))

	sampler, err := buildSampler(cfg.Capture, a.opts.Env)
	if err != nil {
		return err
	}
	region, err := buildRegion(cfg.Capture)
	if err != nil {
		return err
	}
	if region != nil {
		log.Info("capturing region", logx.String("region", region.String()))
	} else {
		log.Info("capturing full screen")
	}

	sc, err := storageConfig(cfg.Storage)
	if err != nil {
		return err
	}
	if a.store, err = storage.Open(sc, log); err != nil {
		return err
	}

	if a.sinks, err = buildSinks(sinkDeps{
		cfg:    cfg,
		env:    a.opts.Env,
		region: region,
		stdout: a.opts.Stdout,
		sender: sender,
		store:  a.store,
		runID:  a.runID,
		log:    log,
	}); err != nil {
		return err
	}

	size := cfg.Pipeline.CacheSize
	if size <= 0 {
		size = config.DefaultCacheSize
	}
	texts := cache.NewText(size)
	a.queue = pipeline.NewQueue()
	a.sd = systemd.New(log)
	a.breaker = guard.NewBreaker(breakerConfig(cfg.Pipeline.Breaker))
	a.stats.SetRuntime(a.runtimeStats)

	if a.disp, err = pipeline.NewDispatcher(dispatcherConfig(cfg, region), pipeline.DispatcherDeps{
		Sampler:   sampler,
		Providers: reg.All(),
		Queue:     a.queue,
		Cache:     texts,
		Recorders: a.sinks.recorders,
		Breaker:   a.breaker,
		Bus:       a.bus,
		Log:       log,
		OnTick:    a.sd.Watchdog,
	}); err != nil {
		return err
	}

	// Background sinks outlive the run context: they are drained after the
	// capture loop stops.
	a.bg = supervisor.New(context.Background(), supervisor.WithLogger(log.With(logx.String("comp", "background"))))
	if a.cons, err = pipeline.NewConsumer(pipeline.ConsumerDeps{
		Queue:   a.queue,
		Cache:   texts,
		Sinks:   a.sinks.sinks,
		Spawner: a.bg,
		Bus:     a.bus,
		Log:     log,
	}); err != nil {
		return err
	}

	a.maint = maintenance.New(maintenance.Config{Timezone: cfg.Maintenance.Timezone}, log)
	if a.store != nil {
		if spec := config.Spec(cfg.Maintenance.Prune, config.DefaultPruneSpec); spec != "" {
			if err := a.maint.Add(maintenance.PruneJob(spec, a.store, cfg.Maintenance.RetentionPeriod(), log)); err != nil {
				return err
			}
		}
	}
	if spec := config.Spec(cfg.Maintenance.Report, config.DefaultReportSpec); spec != "" {
		if err := a.maint.Add(maintenance.ReportJob(spec, a.stats, log)); err != nil {
			return err
		}
	}
	return nil
}

// Done is closed when the run context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Logger is the configured application logger.
func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.bg.Go0("stats", func(c context.Context) { a.stats.Run(c, a.bus) })
	a.bg.Go("consumer", func(c context.Context) error {
		defer close(a.consumerDone)
		return a.cons.Drain(c)
	})

	a.sup.Go("dispatcher", a.disp.Run)

	if a.cfgm != nil {
		updates := a.cfgm.Subscribe(4)
		a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
		a.sup.Go0("config.apply", func(c context.Context) {
			defer a.cfgm.Unsubscribe(updates)
			a.applyReloads(c, updates)
		})
	}

	a.maint.Start(a.sup.Context())
	a.sd.Ready()
	a.sd.Status(fmt.Sprintf("capturing every %s", a.cfg.Interval()))
	a.log.Info("started",
		logx.Duration("interval", a.cfg.Interval()),
		logx.Duration("grace", a.cfg.Grace()),
	)
	return nil
}

// applyReloads hot-applies the logging section. Other changes are reported
// and take effect on the next start.
func (a *App) applyReloads(ctx context.Context, updates <-chan *config.Config) {
	cur := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			applyOverrides(next, a.opts)
			changed, attrs := config.SummarizeChange(cur, next)
			if len(changed) == 0 {
				continue
			}
			a.log.Info("config reloaded", attrs...)
			a.logs.Apply(next.Logging.LogConfig())
			if pending := config.RestartRequired(changed); len(pending) > 0 {
				a.log.Warn("config changes need a restart", logx.Strs("sections", pending))
			}
			cur = next
		}
	}
}

const minDrain = 2 * time.Second

// Stop shuts down in order: stop capturing, let in-flight provider calls
// finish within the grace period, drain the queue, wait for background
// sinks, then close resources. ctx bounds the whole sequence.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		a.closeResources()
		a.logs.Close()
		return nil
	}
	a.log.Info("stopping", logx.Int("in_flight", a.disp.InFlight()), logx.Int("queued", a.queue.Len()))
	a.sup.Cancel()

	grace := a.cfg.Grace()
	deadline := time.Now().Add(grace)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	graceCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	if err := a.disp.Wait(graceCtx); err != nil {
		a.log.Warn("grace period over, cancelling provider calls", logx.Int("in_flight", a.disp.InFlight()))
		a.disp.ForceCancel()
		a.step(ctx, "dispatcher", time.Second, a.disp.Wait)
	}

	// Records pushed by force-cancelled invocations still get delivered, so
	// the drain keeps a floor even when the grace period is spent.
	drain := max(time.Until(deadline), minDrain)
	a.queue.Close()
	a.step(ctx, "consumer", drain, func(c context.Context) error {
		select {
		case <-a.consumerDone:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	a.step(ctx, "background sinks", max(time.Until(deadline), minDrain), a.cons.WaitBackground)

	a.step(ctx, "maintenance", 2*time.Second, a.maint.Stop)
	a.step(ctx, "background", time.Second, a.bg.Stop)
	a.closeResources()

	if panicked := append(a.sup.PanicNames(), a.bg.PanicNames()...); len(panicked) > 0 {
		a.log.Warn("goroutines panicked during the run", logx.Strs("names", panicked))
	}

	a.log.Info("stopped", logx.String("stats", a.stats.Report()))
	a.sd.Stopping()
	a.logs.Close()
	return nil
}

// step runs fn with an upper bound so one component can't stall the stop.
// fn must honor its context; a step that outlives it is logged when it ends.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx := ctx
	if max > 0 {
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			max = time.Millisecond
		}
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
			return
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Err(err),
				logx.Duration("took", time.Since(start)),
			)
		}()
	}
}

// runtimeStats samples both supervisors and the provider breaker for the
// stats report.
func (a *App) runtimeStats() stats.Runtime {
	var r stats.Runtime
	for _, s := range []*supervisor.Supervisor{a.sup, a.bg} {
		if s == nil {
			continue
		}
		c := s.Counters()
		r.Goroutines += c.Active
		r.Started += c.Started
		for name, n := range c.Panics {
			if r.Panics == nil {
				r.Panics = map[string]uint64{}
			}
			r.Panics[name] += n
		}
	}
	r.Circuits, r.OpenCircuits = a.breaker.Snapshot()
	return r
}

func (a *App) closeResources() {
	a.closing.Do(func() {
		for _, c := range a.sinks.closers {
			if err := c.c.Close(); err != nil {
				a.log.Warn("close failed", logx.String("name", c.name), logx.Err(err))
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.log.Warn("storage close failed", logx.Err(err))
			}
		}
	})
}
