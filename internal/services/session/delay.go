package session

import (
	"context"
	"math/rand"
	"time"
)

// DelayPolicy is the pause inserted between a page load and scraping it.
// Injectable so tests can substitute a zero delay.
type DelayPolicy func(ctx context.Context) error

// HumanizedDelay draws a uniform pause from [min, max] per call. A fixed
// pause between navigations is a bot-like timing signature; the jitter is
// the point.
func HumanizedDelay(min, max time.Duration) DelayPolicy {
	if max < min {
		max = min
	}
	return func(ctx context.Context) error {
		pause := min
		if span := max - min; span > 0 {
			pause += time.Duration(rand.Int63n(int64(span) + 1))
		}

		timer := time.NewTimer(pause)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

// NoDelay returns immediately. For tests.
func NoDelay() DelayPolicy {
	return func(ctx context.Context) error {
		return ctx.Err()
	}
}
