package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff computes growing delays between attempts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration // 0 means unbounded
	Multiplier float64
	Jitter     float64 // fraction of the delay, 0 to 1
}

// Delay returns the pause after the given zero-based failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		spread := d * b.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(d)
}

// Sleep pauses for d or until ctx ends, whichever is first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryConfig bounds how often a transient failure is retried.
type RetryConfig struct {
	Backoff
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// OnRetry, if set, is called before sleeping with the 1-based retry
	// number, the error that caused it and the upcoming delay.
	OnRetry func(retry int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the backoff used for device start-up.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Backoff: Backoff{
			Initial:    100 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2.0,
			Jitter:     0.1,
		},
		MaxRetries: 3,
	}
}

// WithMaxRetries returns a copy of cfg with a different attempt budget.
func (cfg RetryConfig) WithMaxRetries(n int) RetryConfig {
	cfg.MaxRetries = max(n, 0)
	return cfg
}

// Retry calls fn until it succeeds, returns a permanent error or the retry
// budget is spent. The last error is returned unchanged.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil || IsPermanentError(err) || attempt >= cfg.MaxRetries {
			return err
		}

		delay := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
