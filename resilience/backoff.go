package resilience

import (
	"context"
	"time"
)

// Backoff returns min(base * 2^attempt, limit) for a 0-based attempt index.
func Backoff(base, limit time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		if d >= limit {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
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
