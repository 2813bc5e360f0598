package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"screenqa/internal/cache"
	"screenqa/internal/eventbus"
	"screenqa/pkg/logx"
)

// Sink delivers one record to one channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// BackgroundSink is implemented by sinks whose delivery must not hold up the
// consumer (email, desktop, network sinks).
type BackgroundSink interface {
	Sink
	Background() bool
}

// Spawner runs detached work; *supervisor.Supervisor satisfies it.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

type ConsumerDeps struct {
	Queue *Queue
	Cache *cache.Text
	Sinks []Sink
	// Spawner runs background sinks. Nil runs them on plain goroutines.
	Spawner Spawner
	Bus     eventbus.Bus
	Log     logx.Logger
}

// Consumer drains the queue in arrival order and hands each record to every
// sink in turn.
type Consumer struct {
	deps ConsumerDeps
	log  logx.Logger
	bg   sync.WaitGroup
}

func NewConsumer(deps ConsumerDeps) (*Consumer, error) {
	if deps.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewText(0)
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	return &Consumer{deps: deps, log: deps.Log.With(logx.String("comp", "consumer"))}, nil
}

// Drain runs until the queue is closed and empty, or ctx is cancelled.
func (c *Consumer) Drain(ctx context.Context) error {
	c.log.Info("result consumer started", logx.Int("sinks", len(c.deps.Sinks)))
	for {
		rec, err := c.deps.Queue.Pop(ctx)
		if errors.Is(err, ErrQueueClosed) {
			c.log.Info("result consumer drained")
			return nil
		}
		if err != nil {
			c.log.Warn("result consumer stopped", logx.Int("pending", c.deps.Queue.Len()), logx.Err(err))
			return nil
		}
		c.deliver(ctx, rec)
	}
}

func (c *Consumer) deliver(ctx context.Context, rec ResultRecord) {
	text, ok := c.deps.Cache.Get(rec.CaptureID)
	d := Delivery{Record: rec, SampleText: text, HasSample: ok}

	for _, s := range c.deps.Sinks {
		if bs, ok := s.(BackgroundSink); ok && bs.Background() {
			c.spawn(s, d)
			continue
		}
		c.run(ctx, s, d)
	}
	publish(c.deps.Bus, eventbus.ResultDelivered, ResultEvent{Record: rec})
}

func (c *Consumer) spawn(s Sink, d Delivery) {
	c.bg.Add(1)
	job := func(ctx context.Context) error {
		defer c.bg.Done()
		c.run(ctx, s, d)
		return nil
	}
	if c.deps.Spawner == nil {
		go func() { _ = job(context.Background()) }()
		return
	}
	c.deps.Spawner.Go("sink."+s.Name(), job)
}

// run isolates one sink: errors and panics are logged and published, never
// propagated.
func (c *Consumer) run(ctx context.Context, s Sink, d Delivery) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("sink panicked", logx.String("sink", s.Name()), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return s.Deliver(ctx, d)
	}()
	if err == nil {
		return
	}
	c.log.Warn("sink failed",
		logx.String("capture", d.Record.CaptureID),
		logx.String("provider", d.Record.ProviderID),
		logx.String("sink", s.Name()),
		logx.Err(err),
	)
	publish(c.deps.Bus, eventbus.SinkFailed, SinkEvent{
		CaptureID:  d.Record.CaptureID,
		ProviderID: d.Record.ProviderID,
		Sink:       s.Name(),
		Err:        err.Error(),
	})
}

// WaitBackground blocks until background deliveries finish or ctx is done.
func (c *Consumer) WaitBackground(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
