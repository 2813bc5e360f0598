package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"screenqa/internal/capture"
	"screenqa/internal/pipeline"
)

// CaptureLog is the append-only text log. Each tick writes a capture block;
// each delivered record appends a response entry below it:
//
//	--- Capture ID: <id> (<timestamp>) ---
//	Scraped Text:
//	<text>
//	--- Responses ---
//	Response from <provider>:
//	<text>
//	---
type CaptureLog struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// OpenCaptureLog opens path for appending and writes a session header.
// truncate starts the file fresh instead.
func OpenCaptureLog(path string, region *capture.Region, truncate bool) (*CaptureLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	l := &CaptureLog{f: f, now: time.Now}

	sel := "full screen"
	if region != nil {
		sel = region.String()
	}
	if _, err := fmt.Fprintf(f, "--- Session Start: %s ---\n\nSelected Capture Region: %s\n\n", l.now().Format(tsLayout), sel); err != nil {
		_ = f.Close()
		return nil, err
	}
	return l, nil
}

func (l *CaptureLog) Name() string { return "log" }

func (l *CaptureLog) RecordCapture(_ context.Context, e pipeline.CaptureEntry) error {
	ts := e.Time
	if ts.IsZero() {
		ts = l.now()
	}
	return l.write(fmt.Sprintf("\n--- Capture ID: %s (%s) ---\nScraped Text:\n%s\n--- Responses ---", e.ID, ts.Format(tsLayout), e.Text))
}

func (l *CaptureLog) Deliver(_ context.Context, d pipeline.Delivery) error {
	return l.write(fmt.Sprintf("\nResponse from %s:\n%s\n---\n", d.Record.ProviderID, d.Record.Text()))
}

func (l *CaptureLog) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("capture log closed")
	}
	_, err := l.f.WriteString(s)
	return err
}

func (l *CaptureLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
