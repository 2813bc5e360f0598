package guard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// BreakerConfig holds circuit settings. Zero fields take defaults;
// a negative Trip disables the breaker.
type BreakerConfig struct {
	Trip       int           // consecutive failures before opening, default 5
	BaseDelay  time.Duration // first cooldown, default 5s
	MaxDelay   time.Duration // cooldown cap, default 2m
	ResetAfter time.Duration // forget failures after this much quiet, default 5m
}

// circuitState tracks consecutive failures for one key.
//
// On success the circuit closes. On failure the count grows and, once it
// reaches Trip, the circuit opens for an exponentially growing cooldown.
type circuitState struct {
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

// Breaker is a per-key consecutive-failure circuit breaker.
type Breaker struct {
	cfg     BreakerConfig
	enabled bool
	now     func() time.Time

	mu sync.Mutex
	m  map[string]*circuitState
}

func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{now: time.Now, m: make(map[string]*circuitState)}
	if cfg.Trip < 0 {
		return b
	}
	if cfg.Trip == 0 {
		cfg.Trip = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Minute
	}
	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = 5 * time.Minute
	}
	b.cfg = cfg
	b.enabled = true
	return b
}

func (b *Breaker) get(key string) *circuitState {
	k := strings.TrimSpace(key)
	if k == "" {
		return nil
	}
	st := b.m[k]
	if st == nil {
		st = &circuitState{}
		b.m[k] = st
	}
	return st
}

// must hold b.mu
func (b *Breaker) maybeReset(st *circuitState, now time.Time) {
	if !st.lastFailure.IsZero() && now.Sub(st.lastFailure) > b.cfg.ResetAfter {
		st.fails = 0
		st.openUntil = time.Time{}
	}
}

// Allow returns ErrCircuitOpen while key's cooldown is running.
func (b *Breaker) Allow(key string) error {
	if b == nil || !b.enabled {
		return nil
	}
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(key)
	if st == nil {
		return nil
	}
	b.maybeReset(st, now)
	if !st.openUntil.IsZero() && now.Before(st.openUntil) {
		return ErrCircuitOpen
	}
	return nil
}

// Record feeds the final outcome of one call. Cancellation is not counted
// as a failure.
func (b *Breaker) Record(key string, err error) {
	if b == nil || !b.enabled {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return
	}
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.get(key)
	if st == nil {
		return
	}
	b.maybeReset(st, now)

	if err == nil {
		st.fails = 0
		st.openUntil = time.Time{}
		st.lastFailure = time.Time{}
		return
	}

	st.fails++
	st.lastFailure = now
	if st.fails < b.cfg.Trip {
		return
	}

	pow := st.fails - b.cfg.Trip
	d := b.cfg.BaseDelay
	for i := 0; i < pow; i++ {
		d *= 2
		if d >= b.cfg.MaxDelay {
			d = b.cfg.MaxDelay
			break
		}
	}
	if d > b.cfg.MaxDelay {
		d = b.cfg.MaxDelay
	}
	st.openUntil = now.Add(d)
}

// Snapshot returns the number of tracked keys and how many are open.
func (b *Breaker) Snapshot() (total, open int) {
	if b == nil || !b.enabled {
		return 0, 0
	}
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	total = len(b.m)
	for _, st := range b.m {
		if !st.openUntil.IsZero() && now.Before(st.openUntil) {
			open++
		}
	}
	return total, open
}
