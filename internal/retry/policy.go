// Package retry implements a backoff-and-jitter retry policy:
// exponential backoff with a capped multiplier and optional uniform
// jitter, retrying only apperr errors of a retryable Kind.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/ocx/qrng-diode/internal/apperr"
)

// Policy configures the retry loop.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// Execute invokes op, retrying on retryable errors until MaxAttempts is
// reached. Non-retryable errors and the final exhausted attempt's error
// propagate immediately.
func (p Policy) Execute(ctx context.Context, op func() error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !apperr.Retryable(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}

		sleep := backoff
		if p.Jitter {
			sleep += time.Duration(rand.Int63n(int64(backoff/4) + 1))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return lastErr
}
