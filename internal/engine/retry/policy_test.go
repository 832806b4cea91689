package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/common/errors"
)

// testPolicy records sleeps instead of waiting.
func testPolicy(maxAttempts int) (*Policy, *[]time.Duration, *[]Attempt) {
	var sleeps []time.Duration
	var attempts []Attempt
	p := NewPolicy(maxAttempts, 100*time.Millisecond, 10*time.Second, 0.2)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	p.Rand = func() float64 { return 1.0 }
	p.OnRetry = func(a Attempt) { attempts = append(attempts, a) }
	return p, &sleeps, &attempts
}

// failing returns an op that fails with errs in order, then succeeds.
func failing(errs ...error) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		calls++
		if calls <= len(errs) {
			return "", errs[calls-1]
		}
		return "ok", nil
	}, &calls
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{name: "rate limited", err: errors.NewRateLimitedError(nil), want: RateLimited},
		{name: "transient server", err: errors.NewTransientRemoteError(503, nil), want: Transient},
		{name: "timeout", err: errors.NewRemoteTimeoutError(time.Second, context.DeadlineExceeded), want: Transient},
		{name: "bare deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: Transient},
		{name: "fatal auth", err: errors.NewFatalRemoteError(401, nil), want: Fatal},
		{name: "configuration", err: errors.NewConfigurationError("bad"), want: Fatal},
		{name: "parse", err: errors.NewParseError("missing summary", nil), want: Parse},
		{name: "unknown", err: stderrors.New("boom"), want: Unclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestExecute_FatalMakesExactlyOneAttempt(t *testing.T) {
	p, sleeps, _ := testPolicy(3)
	op, calls := failing(errors.NewFatalRemoteError(401, stderrors.New("invalid api key")))

	_, err := Execute(context.Background(), p, op)

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFatalRemote)
	assert.Equal(t, 1, *calls)
	assert.Empty(t, *sleeps)
}

func TestExecute_TransientStopsAtCap(t *testing.T) {
	p, sleeps, attempts := testPolicy(3)
	timeout := errors.NewRemoteTimeoutError(time.Second, context.DeadlineExceeded)
	op, calls := failing(timeout, timeout, timeout, timeout)

	_, err := Execute(context.Background(), p, op)

	assert.ErrorIs(t, err, errors.ErrRemoteTimeout)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
	require.Len(t, *attempts, 2)
	assert.Equal(t, 2, (*attempts)[0].Number)
	assert.Equal(t, Transient, (*attempts)[0].Class)
}

func TestExecute_RateLimitedUsesJitterAndCap(t *testing.T) {
	p, sleeps, _ := testPolicy(3)
	limited := errors.NewRateLimitedError(nil)
	op, calls := failing(limited, limited, limited, limited, limited)

	_, err := Execute(context.Background(), p, op)

	assert.ErrorIs(t, err, errors.ErrRateLimited)
	assert.Equal(t, 3, *calls, "rate limiting never goes past the cap")
	// Rand pinned to 1.0 gives the upper jitter bound: delay * 1.2
	assert.Equal(t, []time.Duration{120 * time.Millisecond, 240 * time.Millisecond}, *sleeps)
}

func TestExecute_ParseRetriedOnce(t *testing.T) {
	p, _, _ := testPolicy(5)
	parse := errors.NewParseError("bad json", nil)
	op, calls := failing(parse, parse, parse)

	_, err := Execute(context.Background(), p, op)

	assert.ErrorIs(t, err, errors.ErrParse)
	assert.Equal(t, 2, *calls)
}

func TestExecute_UnclassifiedRetriedOnce(t *testing.T) {
	p, _, _ := testPolicy(5)
	op, calls := failing(stderrors.New("weird"), stderrors.New("weird again"))

	_, err := Execute(context.Background(), p, op)

	assert.EqualError(t, err, "weird again")
	assert.Equal(t, 2, *calls)
}

func TestExecute_RecoversAfterTransient(t *testing.T) {
	p, _, _ := testPolicy(3)
	op, calls := failing(errors.NewTransientRemoteError(502, nil))

	res, err := Execute(context.Background(), p, op)

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 2, *calls)
}

func TestExecute_StopsWhenContextCancelled(t *testing.T) {
	p, _, _ := testPolicy(3)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.NewTransientRemoteError(503, nil)
	}

	_, err := Execute(ctx, p, op)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	p := NewPolicy(10, time.Second, 5*time.Second, 0)
	assert.Equal(t, time.Second, p.Backoff(1, Transient))
	assert.Equal(t, 4*time.Second, p.Backoff(3, Transient))
	assert.Equal(t, 5*time.Second, p.Backoff(4, Transient))
	assert.Equal(t, 5*time.Second, p.Backoff(9, RateLimited))
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, 0, 0, -1)
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, p.MaxDelay)
	assert.Equal(t, DefaultJitter, p.Jitter)
	assert.Equal(t, 1, p.Limit(Fatal))
	assert.Equal(t, 2, p.Limit(Parse))
	assert.Equal(t, 3, p.Limit(RateLimited))
}
