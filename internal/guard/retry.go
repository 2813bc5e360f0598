package guard

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"screenqa/pkg/logx"
)

// Policy controls retries for one call. Zero fields take defaults.
type Policy struct {
	// Retries is the number of extra attempts after the first one.
	Retries  int
	Base     time.Duration // default 500ms
	MaxDelay time.Duration // default 15s
	Jitter   float64       // default 0.2
}

func (p Policy) withDefaults() Policy {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.Base <= 0 {
		p.Base = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 15 * time.Second
	}
	if p.Jitter <= 0 {
		p.Jitter = 0.2
	}
	return p
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func jitterFloat() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

// Do runs fn until it succeeds, returns a NoRetry error, the retries are used
// up, or ctx is done. Panics inside fn become errors wrapping ErrPanic.
// The returned error is the last attempt's error with NoRetry stripped.
func Do(ctx context.Context, log logx.Logger, name string, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var err error
	for attempt := 1; attempt <= 1+p.Retries; attempt++ {
		err = call(ctx, log, name, fn)
		if err == nil {
			return nil
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			return nr.err
		}
		if ctx.Err() != nil || attempt > p.Retries {
			return err
		}

		delay := backoffDelayWithHint(p, attempt, err)
		log.Debug("retry scheduled", logx.String("call", name), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		if delay <= 0 {
			continue
		}
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return err
		case <-tmr.C:
		}
	}
	return err
}

func call(ctx context.Context, log logx.Logger, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error("call panicked", logx.String("call", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return fn(ctx)
}

func backoffDelayWithHint(p Policy, retry int, err error) time.Duration {
	var ra RetryAfterError
	if err != nil && errors.As(err, &ra) {
		return jitter(p, ra.RetryAfter())
	}
	return backoffDelay(p, retry)
}

func backoffDelay(p Policy, retry int) time.Duration {
	d := p.Base
	for i := 1; i < retry; i++ {
		d *= 2
		if d > p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	return jitter(p, d)
}

func jitter(p Policy, d time.Duration) time.Duration {
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 && d > 0 {
		r := (jitterFloat()*2 - 1) * p.Jitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
