// Package retry re-runs a whole reconciliation pass until it succeeds or a
// fixed number of attempts has been spent.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"grimm.is/netemstate/internal/logging"
)

// Defaults used when no settings file overrides them.
const (
	DefaultAttempts = 10
	DefaultDelay    = 100 * time.Millisecond
)

// Policy bounds how often a pass is restarted.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Default returns the policy used by both reconcilers.
func Default() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Run calls pass until it returns nil. A failed pass is followed by the
// policy delay and a fresh call; attempt counts from 1. The context is only
// consulted between attempts.
func (p Policy) Run(ctx context.Context, name string, pass func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	log := logging.WithComponent("retry")

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	var last error
	err := backoff.RetryNotify(func() error {
		attempt++
		last = pass(attempt)
		return last
	}, b, func(err error, wait time.Duration) {
		log.Warn("pass failed, retrying", "pass", name, "attempt", attempt, "of", attempts, "wait", wait, "error", err)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ExhaustedError{Attempts: attempt, Last: last}
}
