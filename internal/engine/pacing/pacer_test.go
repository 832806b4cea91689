package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comment-insights/internal/common/logger"
)

func TestNoDelay(t *testing.T) {
	assert.NoError(t, NoDelay{}.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NoDelay{}.Wait(ctx), context.Canceled)
}

func TestFixedDelay(t *testing.T) {
	var slept []time.Duration
	f := &FixedDelay{Pause: 2 * time.Second, Sleep: func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}}

	require.NoError(t, f.Wait(context.Background()))
	require.NoError(t, f.Wait(context.Background()))
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestSleep_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRedisPacer_SerializesThroughSharedSlot(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var slept []time.Duration
	// miniredis only expires keys when told to, so sleeping fast-forwards its clock
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		mr.FastForward(d)
		return nil
	}

	replicaA := NewRedisPacer(rdb, "pacer:test", time.Second, logger.NewTestLogger(t), WithSleep(sleep))
	replicaB := NewRedisPacer(rdb, "pacer:test", time.Second, logger.NewTestLogger(t), WithSleep(sleep))

	require.NoError(t, replicaA.Wait(context.Background()))
	assert.Empty(t, slept, "free slot is claimed immediately")
	assert.True(t, mr.Exists("pacer:test"))

	require.NoError(t, replicaB.Wait(context.Background()))
	require.Len(t, slept, 1, "second replica waits for the slot to expire")
	assert.InDelta(t, time.Second.Seconds(), slept[0].Seconds(), 0.01)
}

func TestRedisPacer_FallsBackToLocalPause(t *testing.T) {
	db, mock := redismock.NewClientMock()

	var slept []time.Duration
	p := NewRedisPacer(db, "pacer:test", 750*time.Millisecond, logger.NewNoOpLogger(),
		WithTokenSource(func() string { return "tok" }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	mock.ExpectSetNX("pacer:test", "tok", 750*time.Millisecond).SetErr(errors.New("connection refused"))

	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{750 * time.Millisecond}, slept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPacer_WaitsForReportedTTL(t *testing.T) {
	db, mock := redismock.NewClientMock()

	var slept []time.Duration
	p := NewRedisPacer(db, "pacer:test", time.Second, logger.NewNoOpLogger(),
		WithTokenSource(func() string { return "tok" }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)

	mock.ExpectSetNX("pacer:test", "tok", time.Second).SetVal(false)
	mock.ExpectPTTL("pacer:test").SetVal(400 * time.Millisecond)
	mock.ExpectSetNX("pacer:test", "tok", time.Second).SetVal(true)

	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{400 * time.Millisecond}, slept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPacer_ZeroPauseSkipsRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := NewRedisPacer(db, "pacer:test", 0, logger.NewNoOpLogger())

	require.NoError(t, p.Wait(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
