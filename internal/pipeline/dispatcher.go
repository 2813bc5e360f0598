package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"screenqa/internal/cache"
	"screenqa/internal/capture"
	"screenqa/internal/eventbus"
	"screenqa/internal/guard"
	"screenqa/internal/provider"
	"screenqa/pkg/logx"
)

const (
	DefaultCaptureTimeout  = 30 * time.Second
	DefaultProviderTimeout = 45 * time.Second
)

// CaptureRecorder persists every tick's sample, including skipped ones.
type CaptureRecorder interface {
	RecordCapture(ctx context.Context, e CaptureEntry) error
}

// ProviderOptions overrides invocation settings for one provider.
type ProviderOptions struct {
	Timeout time.Duration
	Retry   guard.Policy
}

type DispatcherConfig struct {
	Interval        time.Duration
	Region          *capture.Region
	CaptureTimeout  time.Duration
	ProviderTimeout time.Duration
	Retry           guard.Policy
	PerProvider     map[string]ProviderOptions
}

type DispatcherDeps struct {
	Sampler   capture.Sampler
	Providers []provider.Provider
	Queue     *Queue
	Cache     *cache.Text
	Recorders []CaptureRecorder
	Breaker   *guard.Breaker
	Bus       eventbus.Bus
	Log       logx.Logger
	// OnTick runs after every completed tick (watchdog pings).
	OnTick func()
}

// Dispatcher owns the fixed-interval capture loop and launches one
// invocation per provider per usable sample.
type Dispatcher struct {
	cfg  DispatcherConfig
	deps DispatcherDeps
	ids  capture.IDGenerator
	log  logx.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// invocations run under invokeCtx so an operator interrupt does not
	// abort them; ForceCancel ends them after the grace period.
	invokeCtx   context.Context
	forceCancel context.CancelFunc
	inflight    sync.WaitGroup
	active      atomic.Int64

	// sealed is set by Wait; no invocation starts after it.
	mu     sync.Mutex
	sealed bool
}

func NewDispatcher(cfg DispatcherConfig, deps DispatcherDeps) (*Dispatcher, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if deps.Sampler == nil {
		return nil, errors.New("sampler is required")
	}
	if len(deps.Providers) == 0 {
		return nil, errors.New("no providers enabled")
	}
	if deps.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewText(0)
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:         cfg,
		deps:        deps,
		log:         deps.Log.With(logx.String("comp", "dispatcher")),
		now:         time.Now,
		sleep:       sleepCtx,
		invokeCtx:   ctx,
		forceCancel: cancel,
	}, nil
}

// Run loops until ctx is cancelled. The tick in progress completes first.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("capture loop started",
		logx.Duration("interval", d.cfg.Interval),
		logx.String("region", regionString(d.cfg.Region)),
		logx.Int("providers", len(d.deps.Providers)),
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		start := d.now()
		d.tick(ctx, start)
		if d.deps.OnTick != nil {
			d.deps.OnTick()
		}

		elapsed := d.now().Sub(start)
		wait, overrun := nextDelay(d.cfg.Interval, elapsed)
		if overrun {
			secs := int(math.Round(d.cfg.Interval.Seconds()))
			d.log.Warn(fmt.Sprintf("Processing took longer than %d seconds. Capturing immediately.", secs), logx.Duration("elapsed", elapsed))
			publish(d.deps.Bus, eventbus.CaptureOverrun, CaptureEvent{Elapsed: elapsed})
			continue
		}
		if err := d.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// nextDelay returns the sleep before the next tick. A tick that used the
// whole interval gets no sleep and no catch-up.
func nextDelay(interval, elapsed time.Duration) (time.Duration, bool) {
	if elapsed >= interval {
		return 0, true
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return interval - elapsed, false
}

func (d *Dispatcher) tick(ctx context.Context, start time.Time) {
	id := d.ids.Next(start)
	log := d.log.With(logx.String("capture", id))
	publish(d.deps.Bus, eventbus.CaptureStarted, CaptureEvent{CaptureID: id})
	log.Info("capturing")

	text, err := d.sample(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info("capture interrupted")
		return
	}
	if err != nil {
		log.Warn("capture failed", logx.Err(err))
		text = capture.MarkError(err)
	}
	text = strings.TrimSpace(text)
	skip := text == "" || capture.IsErrorSample(text)
	if text == "" {
		text = capture.EmptySample
	}

	d.deps.Cache.Put(id, text)
	d.record(ctx, log, CaptureEntry{ID: id, Time: start, Text: text, Skipped: skip, Region: d.cfg.Region})

	if skip {
		log.Info("skipping providers: capture error or empty text")
		publish(d.deps.Bus, eventbus.CaptureSkipped, CaptureEvent{CaptureID: id, Skipped: true, Elapsed: d.now().Sub(start)})
		return
	}
	for _, p := range d.deps.Providers {
		if !d.launch(id, p, text) {
			log.Warn("shutting down, invocation not started", logx.String("provider", p.ID()))
		}
	}
}

func (d *Dispatcher) sample(ctx context.Context) (text string, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.CaptureTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("sampler panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", guard.ErrPanic, r)
		}
	}()
	return d.deps.Sampler.Capture(ctx, d.cfg.Region)
}

func (d *Dispatcher) record(ctx context.Context, log logx.Logger, e CaptureEntry) {
	for _, r := range d.deps.Recorders {
		if err := r.RecordCapture(ctx, e); err != nil {
			log.Warn("record capture failed", logx.Err(err))
		}
	}
}

// launch starts one invocation. Whatever happens inside it, exactly one
// record reaches the queue. It reports false once Wait has been called.
func (d *Dispatcher) launch(captureID string, p provider.Provider, text string) bool {
	d.mu.Lock()
	if d.sealed {
		d.mu.Unlock()
		return false
	}
	d.inflight.Add(1)
	d.active.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		defer d.active.Add(-1)

		started := d.now()
		rec := NewRecord(captureID, p.ID(), started, 0, "", fmt.Errorf("%w: invocation aborted", guard.ErrPanic))
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("invocation panicked", logx.String("capture", captureID), logx.String("provider", p.ID()), logx.Any("panic", r))
				}
			}()
			rec = d.invoke(captureID, p, text)
		}()
		d.push(rec)
	}()
	return true
}

func (d *Dispatcher) invoke(captureID string, p provider.Provider, text string) ResultRecord {
	id := p.ID()
	opt := d.options(id)
	started := d.now()

	ctx, cancel := context.WithTimeout(d.invokeCtx, opt.Timeout)
	defer cancel()

	type reply struct {
		answer string
		err    error
	}

	var answer string
	err := d.deps.Breaker.Allow(id)
	if err == nil {
		done := make(chan reply, 1)
		go func() {
			var a string
			err := guard.Do(ctx, d.log, id, opt.Retry, func(ctx context.Context) error {
				out, err := p.Ask(ctx, text)
				if err != nil {
					return err
				}
				a = out
				return nil
			})
			done <- reply{answer: a, err: err}
		}()
		select {
		case r := <-done:
			answer, err = r.answer, r.err
		case <-ctx.Done():
			// The provider ignored its context; its late reply is discarded.
			err = ctx.Err()
		}
		if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		d.deps.Breaker.Record(id, err)
	}

	rec := NewRecord(captureID, id, started, d.now().Sub(started), answer, err)
	if rec.Failed() {
		d.log.Warn("provider failed", logx.String("capture", captureID), logx.String("provider", id), logx.String("kind", string(rec.ErrKind)), logx.String("err", rec.Err))
	}
	return rec
}

func (d *Dispatcher) options(id string) ProviderOptions {
	opt := ProviderOptions{Timeout: d.cfg.ProviderTimeout, Retry: d.cfg.Retry}
	if o, ok := d.cfg.PerProvider[id]; ok {
		if o.Timeout > 0 {
			opt.Timeout = o.Timeout
		}
		if o.Retry != (guard.Policy{}) {
			opt.Retry = o.Retry
		}
	}
	return opt
}

func (d *Dispatcher) push(rec ResultRecord) {
	if err := d.deps.Queue.Push(rec); err != nil {
		d.log.Error("result dropped", logx.String("capture", rec.CaptureID), logx.String("provider", rec.ProviderID), logx.Err(err))
		publish(d.deps.Bus, eventbus.ResultDropped, ResultEvent{Record: rec})
		return
	}
	publish(d.deps.Bus, eventbus.ResultQueued, ResultEvent{Record: rec})
}

// InFlight is the number of invocations still running.
func (d *Dispatcher) InFlight() int { return int(d.active.Load()) }

// Wait blocks until every launched invocation has pushed its record or ctx
// is done. From the first call on, a tick still running in Run starts no
// new invocations.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.sealed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// ForceCancel aborts running invocations. Each still yields one record of
// kind "cancelled".
func (d *Dispatcher) ForceCancel() { d.forceCancel() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func regionString(r *capture.Region) string {
	if r == nil {
		return "full screen"
	}
	return r.String()
}
