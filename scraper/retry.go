package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy retries an operation up to MaxAttempts times with a fixed
// delay between attempts. Sleep defaults to time.Sleep and exists so
// tests can run without waiting.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Sleep       func(time.Duration)
	OnRetry     func(attempt int)
}

// Do runs fn until it succeeds or attempts are exhausted. Every failed
// attempt is logged with the operation kind, URL, and attempt number.
// A canceled context stops retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, kind, url string, fn func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(); err == nil {
			return nil
		}
		slog.Warn("fetch attempt failed",
			slog.String("kind", kind),
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Any("error", err),
		)
		if attempt < attempts {
			if p.OnRetry != nil {
				p.OnRetry(attempt)
			}
			sleep(p.Delay)
		}
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", kind, url, attempts, err)
}
