package pipeline

import (
	"time"

	"screenqa/internal/eventbus"
)

// CaptureEvent is the payload of capture.* events.
type CaptureEvent struct {
	CaptureID string
	Skipped   bool
	Elapsed   time.Duration
}

// ResultEvent is the payload of result.* events.
type ResultEvent struct {
	Record ResultRecord
}

// SinkEvent is the payload of sink.failed.
type SinkEvent struct {
	CaptureID  string
	ProviderID string
	Sink       string
	Err        string
}

func publish(bus eventbus.Bus, typ string, data any) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
