// Package retry implements the bounded retry-with-backoff policy applied at
// the provider collaborator boundary.
package retry

import (
	"context"
	"time"

	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

// Policy holds the retry configuration for an HTTP collaborator.
type Policy struct {
	// MaxRetries is the maximum number of retries after the initial attempt.
	MaxRetries int `yaml:"max_retries"`
	// BackoffFactor is the backoff multiplier in seconds. The wait before
	// retry n is BackoffFactor * 2^(n-1), so a factor of 0.2 yields
	// 0.2s, 0.4s, 0.8s, 1.6s, 3.2s.
	BackoffFactor float64 `yaml:"backoff_factor"`
}

// DefaultPolicy is the provider-client default: 5 retries with a 0.2 backoff
// factor multiplier.
var DefaultPolicy = Policy{MaxRetries: 5, BackoffFactor: 0.2}

// BackoffInterval returns the wait duration before the given retry attempt
// (attempt starts at 1).
func (p Policy) BackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := p.BackoffFactor * float64(int(1)<<(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// Do runs fn, retrying up to MaxRetries times when fn returns a retryable
// error (see exception.IsRetryable). Non-retryable errors and context
// cancellation end the loop immediately.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !exception.IsRetryable(err) || attempt >= p.MaxRetries {
			return err
		}

		wait := p.BackoffInterval(attempt + 1)
		logger.Warnf("%s: attempt %d/%d failed (%v). Retrying in %s.", op, attempt+1, p.MaxRetries, err, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
