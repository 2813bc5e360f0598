//go:build !linux && !darwin

package sink

import "context"

type unsupportedNotifier struct{}

// NewSystemNotifier returns the platform notifier.
func NewSystemNotifier() Notifier { return unsupportedNotifier{} }

func (unsupportedNotifier) Notify(context.Context, string, string) error {
	return ErrNotifyUnsupported
}
