package utils

import (
	"context"
	"fmt"
	"time"
)

// Retry runs fn up to maxRetries times, doubling the wait after each failed
// attempt starting from base (base, 2*base, 4*base...). It stops early when
// fn succeeds or ctx is done, and returns the last error otherwise.
//
//	err := utils.Retry(ctx, 3, time.Second, func() error {
//	    return client.Call(ctx)
//	})
func Retry(ctx context.Context, maxRetries int, base time.Duration, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt < maxRetries {
			wait := base << uint(attempt-1)
			Warn("attempt failed, retrying", "attempt", attempt, "max", maxRetries, "wait", wait, "error", lastErr)
			if err := Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", maxRetries, lastErr)
}
