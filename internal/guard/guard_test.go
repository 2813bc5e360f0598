package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"screenqa/pkg/logx"
)

func fastPolicy(retries int) Policy {
	return Policy{Retries: retries, Base: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), logx.Nop(), "flaky", fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNoRetry(t *testing.T) {
	t.Parallel()
	base := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), logx.Nop(), "permanent", fastPolicy(5), func(ctx context.Context) error {
		calls++
		return NoRetry(base)
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, base) || IsNoRetry(err) {
		t.Fatalf("err = %v, want unwrapped base error", err)
	}
}

func TestDoRecoversPanic(t *testing.T) {
	t.Parallel()
	err := Do(context.Background(), logx.Nop(), "boom", Policy{}, func(ctx context.Context) error {
		panic("kaboom")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("err = %v, want ErrPanic", err)
	}
}

func TestDoHonoursContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, logx.Nop(), "cancel", Policy{Retries: 10, Base: time.Hour, MaxDelay: time.Hour}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if err == nil || calls != 1 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	t.Parallel()
	p := Policy{Base: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.2}.withDefaults()
	for retry := 1; retry <= 8; retry++ {
		d := backoffDelay(p, retry)
		if d < 0 || d > time.Second {
			t.Fatalf("retry %d delay %s out of bounds", retry, d)
		}
	}
	d := backoffDelayWithHint(p, 1, RetryAfter(errors.New("429"), time.Hour))
	if d != time.Second {
		t.Fatalf("hint not capped: %s", d)
	}
}

func TestBreakerOpensAndResets(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerConfig{Trip: 2, BaseDelay: 10 * time.Second, MaxDelay: time.Minute, ResetAfter: time.Hour})
	b.now = func() time.Time { return now }

	fail := errors.New("upstream 500")
	b.Record("gemini", fail)
	if err := b.Allow("gemini"); err != nil {
		t.Fatalf("open after one failure: %v", err)
	}
	b.Record("gemini", fail)
	if err := b.Allow("gemini"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow = %v, want ErrCircuitOpen", err)
	}
	if err := b.Allow("chatgpt"); err != nil {
		t.Fatalf("other key affected: %v", err)
	}
	if total, open := b.Snapshot(); total != 2 || open != 1 {
		t.Fatalf("snapshot = %d/%d", total, open)
	}

	now = now.Add(11 * time.Second)
	if err := b.Allow("gemini"); err != nil {
		t.Fatalf("still open after cooldown: %v", err)
	}
	b.Record("gemini", nil)
	b.Record("gemini", fail)
	if err := b.Allow("gemini"); err != nil {
		t.Fatalf("success did not reset: %v", err)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Trip: 1})
	b.Record("p", context.Canceled)
	if err := b.Allow("p"); err != nil {
		t.Fatalf("cancellation tripped breaker: %v", err)
	}
	disabled := NewBreaker(BreakerConfig{Trip: -1})
	disabled.Record("p", errors.New("x"))
	if err := disabled.Allow("p"); err != nil {
		t.Fatalf("disabled breaker opened: %v", err)
	}
}
