package sink

import (
	"context"
	"errors"
	"fmt"

	"screenqa/internal/pipeline"
)

const (
	DefaultPreview = 200
	appName        = "screenqa"
)

var ErrNotifyUnsupported = errors.New("desktop notifications not supported on this platform")

// Notifier shows one OS-level notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Desktop pops a notification with a short preview of each record.
type Desktop struct {
	n       Notifier
	preview int
}

func NewDesktop(n Notifier, preview int) *Desktop {
	if preview <= 0 {
		preview = DefaultPreview
	}
	return &Desktop{n: n, preview: preview}
}

func (d *Desktop) Name() string     { return "desktop" }
func (d *Desktop) Background() bool { return true }

func (d *Desktop) Deliver(ctx context.Context, del pipeline.Delivery) error {
	r := del.Record
	title := fmt.Sprintf("Answer from %s (Capture %s)", pipeline.DisplayName(r.ProviderID), r.CaptureID)
	return d.n.Notify(ctx, title, Preview(r.Text(), d.preview))
}

// Preview cuts s to n runes and marks the cut with "...".
func Preview(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n]) + "..."
}
