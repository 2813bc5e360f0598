// Package sink holds the delivery channels for provider results.
package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"screenqa/internal/pipeline"
)

const tsLayout = "2006-01-02 15:04:05"

// Console echoes every record to a terminal.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, now: time.Now}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Deliver(_ context.Context, d pipeline.Delivery) error {
	r := d.Record
	rule := strings.Repeat("-", len(r.ProviderID)+20)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "\n[%s] Answer (%s, capture %s):\n%s\n%s\n%s\n",
		c.now().Format(tsLayout), r.ProviderID, r.CaptureID, rule, r.Text(), rule)
	return err
}
