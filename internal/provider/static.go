package provider

import (
	"context"
	"time"
)

// Static replies with a fixed text after a delay. Used as a placeholder
// and in demos without API keys.
type Static struct {
	id    string
	reply string
	delay time.Duration
}

func NewStatic(id, reply string, delay time.Duration) *Static {
	if reply == "" {
		reply = "[not configured]"
	}
	return &Static{id: id, reply: reply, delay: delay}
}

func (s *Static) ID() string { return s.id }

func (s *Static) Ask(ctx context.Context, _ string) (string, error) {
	if s.delay <= 0 {
		return s.reply, ctx.Err()
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
		return s.reply, nil
	}
}
