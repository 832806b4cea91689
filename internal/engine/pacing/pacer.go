// Package pacing enforces the pause between successive remote calls.
package pacing

import (
	"context"
	"time"

	"comment-insights/internal/common/metrics"
)

// Pacer blocks until the next remote call may start. The orchestrator calls
// Wait before every remote call except the first one of a run.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NoDelay never waits. Used in tests and for providers without a shared quota.
type NoDelay struct{}

func (NoDelay) Wait(ctx context.Context) error { return ctx.Err() }

// FixedDelay sleeps for Pause on every Wait.
type FixedDelay struct {
	Pause time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewFixedDelay(pause time.Duration) *FixedDelay {
	return &FixedDelay{Pause: pause, Sleep: Sleep}
}

func (f *FixedDelay) Wait(ctx context.Context) error {
	metrics.PacerWaits.WithLabelValues("fixed").Inc()
	sleep := f.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return sleep(ctx, f.Pause)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
