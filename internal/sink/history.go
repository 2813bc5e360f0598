package sink

import (
	"context"

	"screenqa/internal/pipeline"
	"screenqa/internal/storage"
)

// History writes captures and results to the history store.
type History struct {
	store storage.Store
	runID string
}

func NewHistory(store storage.Store, runID string) *History {
	return &History{store: store, runID: runID}
}

func (h *History) Name() string { return "history" }

func (h *History) RecordCapture(ctx context.Context, e pipeline.CaptureEntry) error {
	row := storage.CaptureRow{RunID: h.runID, ID: e.ID, At: e.Time, Text: e.Text, Skipped: e.Skipped}
	if e.Region != nil {
		row.Region = e.Region.String()
	}
	return h.store.AppendCapture(ctx, row)
}

func (h *History) Deliver(ctx context.Context, d pipeline.Delivery) error {
	r := d.Record
	return h.store.AppendResult(ctx, storage.ResultRow{
		RunID:     h.runID,
		CaptureID: r.CaptureID,
		Provider:  r.ProviderID,
		Outcome:   string(r.Outcome),
		Answer:    r.Answer,
		Error:     r.Err,
		ErrorKind: string(r.ErrKind),
		At:        r.Started.Add(r.Took),
		TookMS:    r.Took.Milliseconds(),
	})
}
