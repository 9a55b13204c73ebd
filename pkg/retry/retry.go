// Package retry runs a step attempt under a hard deadline and retries it with a
// fixed or exponential delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
)

// Policy bounds one step's execution. Total attempts are RetryCount+1.
type Policy struct {
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	Backoff    models.BackoffStrategy
	MaxDelay   time.Duration
}

// PolicyForStep builds the policy declared on step.
func PolicyForStep(step models.Step) Policy {
	return Policy{
		Timeout:    step.Timeout(),
		RetryCount: max(step.RetryCount, 0),
		RetryDelay: step.RetryDelay(),
		Backoff:    step.RetryBackoff,
		MaxDelay:   step.MaxRetryDelay(),
	}
}

func (p Policy) backOff() backoff.BackOff {
	if p.Backoff != models.BackoffExponential {
		return &backoff.ConstantBackOff{Interval: p.RetryDelay}
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.RetryDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<62 - 1)
	}

	b.Reset()

	return b
}

// Attempt is one invocation of the wrapped step. attempt starts at 1.
type Attempt func(ctx context.Context, attempt int) (any, error)

// Notify is called after a failed attempt that will be retried after wait.
type Notify func(attempt int, err error, wait time.Duration)

// Result is the outcome of RunWithPolicy.
type Result struct {
	Output   any
	Attempts int
	Duration time.Duration
	Err      error
}

// Controller applies policies. It is safe for concurrent use by many runs.
type Controller struct {
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewController(clock clockwork.Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Controller{
		clock:  clock,
		logger: logger.With("module", "retry"),
	}
}

// RunWithPolicy invokes fn until it succeeds, fails with a non-retryable error, or
// RetryCount+1 attempts have been made. Each attempt runs under its own deadline of
// policy.Timeout; an attempt that overruns is abandoned and counts as a failure.
// The wait between attempts is cancelled with ctx.
func (c *Controller) RunWithPolicy(ctx context.Context, fn Attempt, policy Policy, notify Notify) Result {
	start := c.clock.Now()
	delays := policy.backOff()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.result(start, nil, attempt-1, cancelled(ctx))
		}

		output, err := c.runAttempt(ctx, fn, attempt, policy.Timeout)
		if err == nil {
			return c.result(start, output, attempt, nil)
		}

		if ctx.Err() != nil {
			return c.result(start, nil, attempt, cancelled(ctx))
		}

		if !protocol.IsRetryable(err) || attempt > policy.RetryCount {
			return c.result(start, nil, attempt, err)
		}

		wait := delays.NextBackOff()
		if wait < 0 {
			return c.result(start, nil, attempt, err)
		}

		c.logger.Debug("Retrying after failed attempt", "attempt", attempt, "wait", wait, "error", err)

		if notify != nil {
			notify(attempt, err, wait)
		}

		if wait > 0 {
			select {
			case <-c.clock.After(wait):
			case <-ctx.Done():
				return c.result(start, nil, attempt, cancelled(ctx))
			}
		}
	}
}

type attemptOutcome struct {
	output any
	err    error
}

func (c *Controller) runAttempt(ctx context.Context, fn Attempt, attempt int, timeout time.Duration) (any, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan attemptOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Step attempt panicked", "attempt", attempt, "panic", r, "stack", string(debug.Stack()))
				done <- attemptOutcome{err: protocol.Fatal(fmt.Errorf("panic: %v", r))}
			}
		}()

		output, err := fn(attemptCtx, attempt)
		done <- attemptOutcome{output: output, err: err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil && errors.Is(outcome.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timedOut(attempt, timeout)
		}

		return outcome.output, outcome.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}

		return nil, timedOut(attempt, timeout)
	}
}

func (c *Controller) result(start time.Time, output any, attempts int, err error) Result {
	return Result{
		Output:   output,
		Attempts: attempts,
		Duration: c.clock.Since(start),
		Err:      err,
	}
}

func timedOut(attempt int, timeout time.Duration) error {
	return protocol.Transient(fmt.Errorf("attempt %d timed out after %s: %w", attempt, timeout, context.DeadlineExceeded))
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", protocol.ErrCancelled, context.Cause(ctx))
}
