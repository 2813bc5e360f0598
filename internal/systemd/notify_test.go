package systemd

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"screenqa/pkg/logx"
)

type recorder struct {
	states []string
	err    error
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.states = append(r.states, state)
	return r.err == nil, r.err
}

func TestLifecycleStates(t *testing.T) {
	r := &recorder{}
	n := &Notifier{log: logx.Nop(), notify: r.notify, now: time.Now}
	n.Ready()
	n.Status("capturing")
	n.Watchdog() // disabled: no ping
	n.Stopping()

	want := []string{"READY=1", "STATUS=capturing", "STOPPING=1"}
	if !reflect.DeepEqual(r.states, want) {
		t.Fatalf("states %v, want %v", r.states, want)
	}
}

func TestWatchdogThrottled(t *testing.T) {
	r := &recorder{}
	now := time.Unix(1000, 0)
	n := &Notifier{log: logx.Nop(), notify: r.notify, watchdog: 10 * time.Second, now: func() time.Time { return now }}

	n.Watchdog()
	now = now.Add(2 * time.Second)
	n.Watchdog()
	now = now.Add(4 * time.Second)
	n.Watchdog()

	if len(r.states) != 2 || r.states[0] != "WATCHDOG=1" {
		t.Fatalf("pings: %v", r.states)
	}
}

func TestNotifyErrorIsSwallowed(t *testing.T) {
	r := &recorder{err: errors.New("socket gone")}
	n := &Notifier{log: logx.Nop(), notify: r.notify, now: time.Now}
	n.Ready()
	if len(r.states) != 1 {
		t.Fatalf("states: %v", r.states)
	}

	var nilN *Notifier
	nilN.Ready()
	nilN.Watchdog()
}
