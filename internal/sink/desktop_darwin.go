//go:build darwin

package sink

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type osascriptNotifier struct{}

// NewSystemNotifier returns the platform notifier.
func NewSystemNotifier() Notifier { return osascriptNotifier{} }

func (osascriptNotifier) Notify(ctx context.Context, title, message string) error {
	script := fmt.Sprintf("display notification %s with title %s", appleQuote(message), appleQuote(title))
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
