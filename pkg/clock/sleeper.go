// Package clock provides a cancellation-aware sleep abstraction so retry
// backoff and wait windows can be faked in tests.
package clock

import (
	"context"
	"time"
)

// Sleeper waits for a duration or returns early on context cancellation.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Real sleeps on a timer.
type Real struct{}

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fake records requested durations and returns immediately. Useful in tests.
type Fake struct {
	Slept []time.Duration
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.Slept = append(f.Slept, d)

	return nil
}
