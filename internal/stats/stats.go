// Package stats counts pipeline events and renders a short report.
package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"screenqa/internal/eventbus"
	"screenqa/internal/pipeline"
)

// Snapshot is a copy of the counters at one point in time.
type Snapshot struct {
	Since       time.Time
	LastCapture time.Time

	Ticks     uint64
	Skipped   uint64
	Overruns  uint64
	Queued    uint64
	Dropped   uint64
	Delivered uint64

	Answers   uint64
	NoResults uint64
	Errors    map[string]uint64 // by error kind
	SinkFails map[string]uint64 // by sink name

	// ProviderTime is the summed invocation time of delivered records.
	ProviderTime time.Duration

	Runtime Runtime
}

// Runtime is sampled from the process when a snapshot is taken.
type Runtime struct {
	Goroutines   int64             // supervised goroutines still running
	Started      uint64            // supervised goroutines started so far
	Panics       map[string]uint64 // recovered panics by goroutine name
	Circuits     int               // providers tracked by the breaker
	OpenCircuits int
}

// Collector is fed from the event bus. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	s       Snapshot
	now     func() time.Time
	runtime func() Runtime
}

func New() *Collector {
	c := &Collector{now: time.Now}
	c.s = Snapshot{Since: c.now(), Errors: map[string]uint64{}, SinkFails: map[string]uint64{}}
	return c
}

// SetRuntime installs the sampler Snapshot uses for the Runtime section.
func (c *Collector) SetRuntime(fn func() Runtime) {
	c.mu.Lock()
	c.runtime = fn
	c.mu.Unlock()
}

// Run subscribes to bus and counts events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

func (c *Collector) Observe(e eventbus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &c.s
	switch e.Type {
	case eventbus.CaptureStarted:
		s.Ticks++
		s.LastCapture = e.Time
	case eventbus.CaptureSkipped:
		s.Skipped++
	case eventbus.CaptureOverrun:
		s.Overruns++
	case eventbus.ResultQueued:
		s.Queued++
	case eventbus.ResultDropped:
		s.Dropped++
	case eventbus.ResultDelivered:
		s.Delivered++
		ev, ok := e.Data.(pipeline.ResultEvent)
		if !ok {
			return
		}
		s.ProviderTime += ev.Record.Took
		switch ev.Record.Outcome {
		case pipeline.OutcomeAnswer:
			s.Answers++
		case pipeline.OutcomeNoResult:
			s.NoResults++
		default:
			s.Errors[string(ev.Record.ErrKind)]++
		}
	case eventbus.SinkFailed:
		if ev, ok := e.Data.(pipeline.SinkEvent); ok {
			s.SinkFails[ev.Sink]++
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	out := c.s
	out.Errors = make(map[string]uint64, len(c.s.Errors))
	for k, v := range c.s.Errors {
		out.Errors[k] = v
	}
	out.SinkFails = make(map[string]uint64, len(c.s.SinkFails))
	for k, v := range c.s.SinkFails {
		out.SinkFails[k] = v
	}
	rt := c.runtime
	c.mu.Unlock()

	if rt != nil {
		out.Runtime = rt()
	}
	return out
}

// Report renders the counters on one line.
func (c *Collector) Report() string {
	return c.Snapshot().Format(c.now())
}

// Format renders s relative to now.
func (s Snapshot) Format(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "up since %s: %s captures (%s skipped, %s overruns)",
		humanize.RelTime(s.Since, now, "ago", "from now"),
		humanize.Comma(int64(s.Ticks)), humanize.Comma(int64(s.Skipped)), humanize.Comma(int64(s.Overruns)))

	var errs uint64
	for _, n := range s.Errors {
		errs += n
	}
	fmt.Fprintf(&b, "; %s results delivered: %s answers, %s no question, %s errors",
		humanize.Comma(int64(s.Delivered)), humanize.Comma(int64(s.Answers)),
		humanize.Comma(int64(s.NoResults)), humanize.Comma(int64(errs)))
	if errs > 0 {
		fmt.Fprintf(&b, " (%s)", joinCounts(s.Errors))
	}
	if s.Delivered > 0 {
		avg := s.ProviderTime / time.Duration(s.Delivered)
		fmt.Fprintf(&b, "; avg provider time %s", avg.Round(time.Millisecond))
	}
	if s.Dropped > 0 {
		fmt.Fprintf(&b, "; %s dropped", humanize.Comma(int64(s.Dropped)))
	}
	if len(s.SinkFails) > 0 {
		fmt.Fprintf(&b, "; sink failures: %s", joinCounts(s.SinkFails))
	}
	if r := s.Runtime; r.Started > 0 {
		fmt.Fprintf(&b, "; %s goroutines running (%s started)", humanize.Comma(r.Goroutines), humanize.Comma(int64(r.Started)))
		if len(r.Panics) > 0 {
			fmt.Fprintf(&b, ", panics: %s", joinCounts(r.Panics))
		}
	}
	if s.Runtime.Circuits > 0 {
		fmt.Fprintf(&b, "; open circuits %d of %d", s.Runtime.OpenCircuits, s.Runtime.Circuits)
	}
	if !s.LastCapture.IsZero() {
		fmt.Fprintf(&b, "; last capture %s", humanize.RelTime(s.LastCapture, now, "ago", "from now"))
	}
	return b.String()
}

func joinCounts(m map[string]uint64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		name := k
		if name == "" {
			name = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, humanize.Comma(int64(m[k]))))
	}
	return strings.Join(parts, ", ")
}
