package mock

import (
	"context"
	"sync"
	"time"

	"margin_maker/internal/core"
)

// FakeClock is a manually advanced clock. Sleep returns immediately after
// advancing the fake time, so cooldowns and settlement delays run instantly
// in tests while remaining observable.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

func (c *FakeClock) NewTicker(d time.Duration) core.ITicker {
	return newFakeTicker(c, d)
}

// Advance moves the fake time forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleeps returns every duration passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// fakeTicker ticks on every receive. Polling loops built on it make
// progress without wall-clock delays.
type fakeTicker struct {
	clock *FakeClock
	d     time.Duration
	ch    chan time.Time
	done  chan struct{}
	once  sync.Once
}

func newFakeTicker(clock *FakeClock, d time.Duration) *fakeTicker {
	t := &fakeTicker{
		clock: clock,
		d:     d,
		ch:    make(chan time.Time),
		done:  make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *fakeTicker) run() {
	for {
		t.clock.Advance(t.d)
		select {
		case t.ch <- t.clock.Now():
		case <-t.done:
			return
		}
	}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}
