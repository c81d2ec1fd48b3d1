package utils

import (
	"context"
	"math/rand"
	"time"
)

// Sleep blocks for d or until ctx is done, whichever comes first.
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

// RandomDelay sleeps for a random duration between min and max.
func RandomDelay(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		return Sleep(ctx, min)
	}
	return Sleep(ctx, min+time.Duration(rand.Int63n(int64(max-min))))
}
