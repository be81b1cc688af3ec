package llm

import (
	"context"
	"regexp"
	"strconv"
	"time"
)

// RetryConfig governs backoff on rate-limit-class failures. Defaults
// match the adapter contract: 1s base, doubling, 60s cap, 5 retries.
type RetryConfig struct {
	BaseDelay  time.Duration
	Factor     float64
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetry is the standard rate-limit backoff schedule.
var DefaultRetry = RetryConfig{
	BaseDelay:  1 * time.Second,
	Factor:     2.0,
	MaxDelay:   60 * time.Second,
	MaxRetries: 5,
}

// delay computes the backoff for the given attempt (0-based), preferring
// a server-provided hint when one exists.
func (c RetryConfig) delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		// Hint plus a safety buffer, capped.
		d := hint + 500*time.Millisecond
		if d > c.MaxDelay {
			return c.MaxDelay
		}
		return d
	}
	d := time.Duration(float64(c.BaseDelay) * pow(c.Factor, attempt))
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

var retryHintRe = regexp.MustCompile(`(?i)try again in\s+(\d+(?:\.\d+)?)\s*(ms|s)\b`)

// parseRetryHint extracts a "try again in X ms/s" hint from an error
// message. Returns 0 when no hint is present.
func parseRetryHint(msg string) time.Duration {
	m := retryHintRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "ms":
		return time.Duration(v * float64(time.Millisecond))
	default:
		return time.Duration(v * float64(time.Second))
	}
}

// sleepCtx sleeps for d or until the context is done, whichever first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
