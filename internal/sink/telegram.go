package sink

import (
	"context"
	"fmt"

	"screenqa/internal/pipeline"
	"screenqa/internal/transport"
)

// Telegram forwards records to a chat.
type Telegram struct {
	sender transport.Sender
	to     transport.ChatTarget
	silent bool
}

func NewTelegram(sender transport.Sender, to transport.ChatTarget, silent bool) *Telegram {
	return &Telegram{sender: sender, to: to, silent: silent}
}

func (t *Telegram) Name() string     { return "telegram" }
func (t *Telegram) Background() bool { return true }

func (t *Telegram) Deliver(ctx context.Context, d pipeline.Delivery) error {
	r := d.Record
	msg := fmt.Sprintf("%s (capture %s)\n\n%s", pipeline.DisplayName(r.ProviderID), r.CaptureID, r.Text())
	return t.sender.SendText(ctx, t.to, msg, &transport.SendOptions{DisablePreview: true, Silent: t.silent})
}
