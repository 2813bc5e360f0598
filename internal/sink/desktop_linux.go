//go:build linux

package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
	// milliseconds the notification stays up
	notifyExpire = int32(10000)
)

// dbusNotifier talks to the session notification daemon. The connection
// is opened lazily and dropped after a failed call so the next one redials.
type dbusNotifier struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewSystemNotifier returns the platform notifier.
func NewSystemNotifier() Notifier { return &dbusNotifier{} }

func (n *dbusNotifier) connLocked() (*dbus.Conn, error) {
	if n.conn != nil && n.conn.Connected() {
		return n.conn, nil
	}
	c, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	n.conn = c
	return c, nil
}

func (n *dbusNotifier) Notify(ctx context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, err := n.connLocked()
	if err != nil {
		return err
	}
	obj := c.Object(notifyDest, notifyPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		appName, uint32(0), "", title, message,
		[]string{}, map[string]dbus.Variant{}, notifyExpire,
	)
	if call.Err != nil {
		_ = c.Close()
		n.conn = nil
		return fmt.Errorf("notify: %w", call.Err)
	}
	return nil
}

func (n *dbusNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
