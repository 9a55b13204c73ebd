package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder returns an Attempt that fails until failures attempts have been made
// and records the fake-clock time of each call.
func recorder(clock clockwork.Clock, failures int) (Attempt, func() []time.Time) {
	var (
		mu    sync.Mutex
		calls []time.Time
	)

	fn := func(_ context.Context, attempt int) (any, error) {
		mu.Lock()
		calls = append(calls, clock.Now())
		mu.Unlock()

		if attempt <= failures {
			return nil, protocol.Transientf("attempt %d failed", attempt)
		}

		return map[string]any{"attempt": attempt}, nil
	}

	return fn, func() []time.Time {
		mu.Lock()
		defer mu.Unlock()

		return append([]time.Time(nil), calls...)
	}
}

// drive advances the fake clock through each expected wait while RunWithPolicy
// runs in the background.
func drive(t *testing.T, clock *clockwork.FakeClock, waits []time.Duration, run func() Result) Result {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan Result, 1)
	go func() { results <- run() }()

	for _, wait := range waits {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(wait)
	}

	select {
	case res := <-results:
		return res
	case <-ctx.Done():
		t.Fatal("RunWithPolicy did not finish")

		return Result{}
	}
}

func TestRunWithPolicy_FirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	c := NewController(clock, discardLogger())
	fn, calls := recorder(clock, 0)

	res := c.RunWithPolicy(context.Background(), fn, Policy{Timeout: time.Second, RetryCount: 3, RetryDelay: time.Second}, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, calls(), 1)
	assert.Equal(t, map[string]any{"attempt": 1}, res.Output)
}

func TestRunWithPolicy_FailsNTimesThenSucceeds(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 4} {
		clock := clockwork.NewFakeClock()
		c := NewController(clock, discardLogger())
		fn, calls := recorder(clock, n)
		policy := Policy{Timeout: time.Second, RetryCount: n, RetryDelay: 2 * time.Second}

		waits := make([]time.Duration, n)
		for i := range waits {
			waits[i] = 2 * time.Second
		}

		res := drive(t, clock, waits, func() Result {
			return c.RunWithPolicy(context.Background(), fn, policy, nil)
		})

		require.NoError(t, res.Err, "n=%d", n)
		assert.Equal(t, n+1, res.Attempts)
		assert.Len(t, calls(), n+1)
		assert.Equal(t, time.Duration(n)*2*time.Second, res.Duration)
	}
}

func TestRunWithPolicy_AlwaysFailsAfterRetryCountPlusOne(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	c := NewController(clock, discardLogger())
	fn, calls := recorder(clock, 100)

	var notified []int

	res := drive(t, clock, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, func() Result {
		return c.RunWithPolicy(context.Background(), fn, Policy{Timeout: time.Second, RetryCount: 3, RetryDelay: 3 * time.Second},
			func(attempt int, err error, wait time.Duration) {
				notified = append(notified, attempt)
				assert.Equal(t, 3*time.Second, wait)
				assert.ErrorIs(t, err, protocol.ErrTransient)
			})
	})

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, protocol.ErrTransient)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, []int{1, 2, 3}, notified)

	times := calls()
	require.Len(t, times, 4)

	for i := 1; i < len(times); i++ {
		assert.Equal(t, 3*time.Second, times[i].Sub(times[i-1]))
	}
}

func TestRunWithPolicy_ExponentialCapped(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	c := NewController(clock, discardLogger())
	fn, calls := recorder(clock, 100)
	policy := Policy{
		Timeout:    time.Second,
		RetryCount: 3,
		RetryDelay: time.Second,
		Backoff:    models.BackoffExponential,
		MaxDelay:   3 * time.Second,
	}

	res := drive(t, clock, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, func() Result {
		return c.RunWithPolicy(context.Background(), fn, policy, nil)
	})

	require.Error(t, res.Err)
	assert.Equal(t, 4, res.Attempts)

	times := calls()
	require.Len(t, times, 4)
	assert.Equal(t, time.Second, times[1].Sub(times[0]))
	assert.Equal(t, 2*time.Second, times[2].Sub(times[1]))
	assert.Equal(t, 3*time.Second, times[3].Sub(times[2]))
}

func TestRunWithPolicy_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		err  error
		kind error
	}{
		{name: "validation", err: protocol.Validationf("missing recipient"), kind: protocol.ErrValidation},
		{name: "configuration", err: protocol.Configurationf("unknown action"), kind: protocol.ErrConfiguration},
		{name: "fatal", err: protocol.Fatal(errors.New("unknown step type")), kind: protocol.ErrFatal},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32

			c := NewController(clockwork.NewFakeClock(), discardLogger())
			res := c.RunWithPolicy(context.Background(), func(context.Context, int) (any, error) {
				calls.Add(1)

				return nil, tc.err
			}, Policy{Timeout: time.Second, RetryCount: 5, RetryDelay: time.Hour}, nil)

			assert.ErrorIs(t, res.Err, tc.kind)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestRunWithPolicy_TimeoutCountsAsAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	c := NewController(clockwork.NewRealClock(), discardLogger())
	res := c.RunWithPolicy(context.Background(), func(ctx context.Context, _ int) (any, error) {
		calls.Add(1)
		<-ctx.Done()

		return nil, ctx.Err()
	}, Policy{Timeout: 20 * time.Millisecond, RetryCount: 1}, nil)

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, protocol.ErrTransient)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Contains(t, res.Err.Error(), "timed out")
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunWithPolicy_SlowStepIsAbandoned(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	c := NewController(clockwork.NewRealClock(), discardLogger())

	start := time.Now()
	res := c.RunWithPolicy(context.Background(), func(context.Context, int) (any, error) {
		<-release

		return "late", nil
	}, Policy{Timeout: 20 * time.Millisecond}, nil)

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Nil(t, res.Output)
}

func TestRunWithPolicy_CancelledDuringWait(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	c := NewController(clock, discardLogger())
	fn, calls := recorder(clock, 100)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan Result, 1)

	go func() {
		results <- c.RunWithPolicy(ctx, fn, Policy{Timeout: time.Second, RetryCount: 3, RetryDelay: time.Minute}, nil)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	res := <-results
	assert.ErrorIs(t, res.Err, protocol.ErrCancelled)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, protocol.IsRetryable(res.Err))
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, calls(), 1)
}

func TestRunWithPolicy_AlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewController(clockwork.NewFakeClock(), discardLogger())
	res := c.RunWithPolicy(ctx, func(context.Context, int) (any, error) {
		t.Error("attempt must not run")

		return nil, nil
	}, Policy{Timeout: time.Second}, nil)

	assert.ErrorIs(t, res.Err, protocol.ErrCancelled)
	assert.Equal(t, 0, res.Attempts)
}

func TestRunWithPolicy_PanicIsFatal(t *testing.T) {
	t.Parallel()

	c := NewController(clockwork.NewFakeClock(), discardLogger())
	res := c.RunWithPolicy(context.Background(), func(context.Context, int) (any, error) {
		panic("nil map")
	}, Policy{Timeout: time.Second, RetryCount: 2}, nil)

	assert.ErrorIs(t, res.Err, protocol.ErrFatal)
	assert.Contains(t, res.Err.Error(), "nil map")
	assert.Equal(t, 1, res.Attempts)
}

func TestPolicyForStep(t *testing.T) {
	t.Parallel()

	policy := PolicyForStep(models.Step{
		TimeoutSeconds:       10,
		RetryCount:           2,
		RetryDelaySeconds:    5,
		RetryBackoff:         models.BackoffExponential,
		MaxRetryDelaySeconds: 60,
	})

	assert.Equal(t, Policy{
		Timeout:    10 * time.Second,
		RetryCount: 2,
		RetryDelay: 5 * time.Second,
		Backoff:    models.BackoffExponential,
		MaxDelay:   time.Minute,
	}, policy)

	assert.Equal(t, 30*time.Second, PolicyForStep(models.Step{}).Timeout)
}
