package stats

import (
	"context"
	"strings"
	"testing"
	"time"

	"screenqa/internal/eventbus"
	"screenqa/internal/pipeline"
	"screenqa/internal/provider"
)

func delivered(outcome pipeline.Outcome, kind provider.ErrorKind, took time.Duration) eventbus.Event {
	return eventbus.Event{
		Type: eventbus.ResultDelivered,
		Data: pipeline.ResultEvent{Record: pipeline.ResultRecord{Outcome: outcome, ErrKind: kind, Took: took}},
	}
}

func TestObserveCounts(t *testing.T) {
	t.Parallel()

	c := New()
	for _, e := range []eventbus.Event{
		{Type: eventbus.CaptureStarted, Time: time.Now()},
		{Type: eventbus.CaptureStarted, Time: time.Now()},
		{Type: eventbus.CaptureSkipped},
		{Type: eventbus.CaptureOverrun},
		delivered(pipeline.OutcomeAnswer, "", time.Second),
		delivered(pipeline.OutcomeNoResult, "", time.Second),
		delivered(pipeline.OutcomeError, provider.KindTimeout, 4*time.Second),
		{Type: eventbus.SinkFailed, Data: pipeline.SinkEvent{Sink: "email"}},
		{Type: eventbus.SinkFailed, Data: pipeline.SinkEvent{Sink: "email"}},
	} {
		c.Observe(e)
	}
	s := c.Snapshot()
	if s.Ticks != 2 || s.Skipped != 1 || s.Overruns != 1 || s.Delivered != 3 {
		t.Fatalf("counters: %+v", s)
	}
	if s.Answers != 1 || s.NoResults != 1 || s.Errors["timeout"] != 1 || s.SinkFails["email"] != 2 {
		t.Fatalf("outcomes: %+v", s)
	}

	// Snapshot maps are copies.
	s.Errors["timeout"] = 99
	if c.Snapshot().Errors["timeout"] != 1 {
		t.Fatalf("snapshot shares state")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Snapshot{
		Since:        now.Add(-2 * time.Hour),
		LastCapture:  now.Add(-30 * time.Second),
		Ticks:        1234,
		Delivered:    2,
		Answers:      1,
		Errors:       map[string]uint64{"timeout": 1},
		SinkFails:    map[string]uint64{"desktop": 3},
		ProviderTime: 3 * time.Second,
	}
	got := s.Format(now)
	for _, want := range []string{
		"up since 2 hours ago",
		"1,234 captures",
		"2 results delivered: 1 answers, 0 no question, 1 errors (timeout=1)",
		"avg provider time 1.5s",
		"sink failures: desktop=3",
		"last capture 30 seconds ago",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	c := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, bus)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for c.Snapshot().Ticks == 0 && time.Now().Before(deadline) {
		bus.Publish(eventbus.Event{Type: eventbus.CaptureStarted})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	if c.Snapshot().Ticks == 0 {
		t.Fatalf("no events observed")
	}
}

func TestRuntimeSection(t *testing.T) {
	t.Parallel()

	c := New()
	c.SetRuntime(func() Runtime {
		return Runtime{
			Goroutines:   3,
			Started:      5,
			Panics:       map[string]uint64{"consumer": 1},
			Circuits:     3,
			OpenCircuits: 1,
		}
	})
	s := c.Snapshot()
	if s.Runtime.OpenCircuits != 1 || s.Runtime.Panics["consumer"] != 1 {
		t.Fatalf("runtime: %+v", s.Runtime)
	}
	got := c.Report()
	for _, want := range []string{
		"3 goroutines running (5 started)",
		"panics: consumer=1",
		"open circuits 1 of 3",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}

	if strings.Contains(New().Report(), "goroutines") {
		t.Fatalf("runtime section without a sampler")
	}
}
