// Package retry provides the bounded retry policy shared by the connect and
// send paths: a fixed number of attempts separated by a fixed backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// Defaults used by the transport.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 1000 * time.Millisecond
)

var errNoAttempts = errors.New("retry: MaxAttempts must be > 0")

// Policy retries an operation up to MaxAttempts times, waiting Backoff
// between consecutive attempts. There is no wait after the last attempt.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration

	// Clock drives the backoff timer. Nil means the wall clock.
	Clock clock.Clock

	// OnRetry is called after a failed attempt that will be retried,
	// before the backoff wait starts.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Default returns the transport's standard policy: 3 attempts, 1s apart.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
	}
}

// Op is one attempt. attempt counts from 1.
type Op func(ctx context.Context, attempt int) error

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop wraps err so Do returns it immediately without further attempts.
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// Result describes how a Do call ended.
type Result struct {
	// Attempts is the number of times the operation ran.
	Attempts int
	// Err is the final error, unwrapped from Stop. Nil on success.
	Err error
}

// Do runs op until it succeeds, returns a Stop error, ctx is done, or
// MaxAttempts is reached. It returns the last error seen; when ctx ends a
// backoff wait, the ctx error is returned.
func (p Policy) Do(ctx context.Context, op Op) Result {
	if p.MaxAttempts <= 0 {
		return Result{Err: errNoAttempts}
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1, Err: err}
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return Result{Attempts: attempt}
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return Result{Attempts: attempt, Err: perm.Err}
		}

		if attempt == p.MaxAttempts {
			return Result{Attempts: attempt, Err: lastErr}
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr, p.Backoff)
		}
		if err := sleep(ctx, clk, p.Backoff); err != nil {
			return Result{Attempts: attempt, Err: err}
		}
	}
	return Result{Attempts: p.MaxAttempts, Err: lastErr}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := clk.Timer(d)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}
