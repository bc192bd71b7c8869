package core

import (
	"context"
	"time"
)

// ITicker is a stoppable tick source.
type ITicker interface {
	C() <-chan time.Time
	Stop()
}

// IClock abstracts time so polling cadences and cooldowns can be simulated
// in tests without real delays.
type IClock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	NewTicker(d time.Duration) ITicker
}

// RealClock is the production IClock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done, whichever comes first.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (RealClock) NewTicker(d time.Duration) ITicker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
