package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanoutAndDrop(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: CaptureStarted})
	b.Publish(Event{Type: CaptureSkipped}) // a is full; dropped for a only

	if e := <-a; e.Type != CaptureStarted || e.Time.IsZero() {
		t.Fatalf("a got %+v", e)
	}
	select {
	case e := <-a:
		t.Fatalf("a should have dropped second event, got %+v", e)
	case <-time.After(10 * time.Millisecond):
	}
	if e := <-c; e.Type != CaptureStarted {
		t.Fatalf("c first = %s", e.Type)
	}
	if e := <-c; e.Type != CaptureSkipped {
		t.Fatalf("c second = %s", e.Type)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: ResultQueued}) // must not panic
}
