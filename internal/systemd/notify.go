// Package systemd reports service state to systemd through sd_notify.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"screenqa/pkg/logx"
)

type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends readiness, watchdog and stopping notifications.
//
// Watchdog pings are tied to completed capture ticks, so WatchdogSec in the
// unit must exceed the capture interval plus the longest expected tick.
type Notifier struct {
	log      logx.Logger
	notify   notifyFunc
	watchdog time.Duration

	mu       sync.Mutex
	lastPing time.Time
	now      func() time.Time
}

func New(log logx.Logger) *Notifier {
	n := &Notifier{
		log:    log.With(logx.String("comp", "systemd")),
		notify: daemon.SdNotify,
		now:    time.Now,
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.log.Warn("watchdog settings invalid", logx.Err(err))
	} else if interval > 0 {
		n.watchdog = interval
		n.log.Info("watchdog enabled", logx.Duration("interval", interval))
	}
	return n
}

// WatchdogInterval is the interval systemd expects pings at, or 0.
func (n *Notifier) WatchdogInterval() time.Duration { return n.watchdog }

func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

// Watchdog pings systemd, at most twice per watchdog interval.
func (n *Notifier) Watchdog() {
	if n == nil || n.watchdog <= 0 {
		return
	}
	n.mu.Lock()
	now := n.now()
	due := now.Sub(n.lastPing) >= n.watchdog/2
	if due {
		n.lastPing = now
	}
	n.mu.Unlock()
	if due {
		n.send(daemon.SdNotifyWatchdog)
	}
}

func (n *Notifier) send(state string) {
	if n == nil || n.notify == nil {
		return
	}
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}
