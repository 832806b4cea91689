package pacing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"comment-insights/internal/common/logger"
	"comment-insights/internal/common/metrics"
)

// minPoll bounds how fast a waiter re-checks a slot whose TTL Redis could not report.
const minPoll = 10 * time.Millisecond

// RedisPacer shares one call slot across every replica that uses the same
// key. Claiming the slot is SET key token NX PX pause; whoever holds it may
// call, everyone else waits for the key to expire. When Redis is unreachable
// the pacer degrades to a local pause.
type RedisPacer struct {
	rdb      redis.Cmdable
	key      string
	pause    time.Duration
	logger   logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	newToken func() string
}

type RedisOption func(*RedisPacer)

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RedisOption {
	return func(p *RedisPacer) { p.sleep = sleep }
}

func WithTokenSource(next func() string) RedisOption {
	return func(p *RedisPacer) { p.newToken = next }
}

func NewRedisPacer(rdb redis.Cmdable, key string, pause time.Duration, log logger.Logger, opts ...RedisOption) *RedisPacer {
	p := &RedisPacer{
		rdb:      rdb,
		key:      key,
		pause:    pause,
		logger:   log.With(map[string]interface{}{"pacerKey": key}),
		sleep:    Sleep,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisPacer) Wait(ctx context.Context) error {
	if p.pause <= 0 {
		return ctx.Err()
	}
	metrics.PacerWaits.WithLabelValues("redis").Inc()

	token := p.newToken()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := p.rdb.SetNX(ctx, p.key, token, p.pause).Result()
		if err != nil {
			return p.fallback(ctx, err)
		}
		if ok {
			return nil
		}

		ttl, err := p.rdb.PTTL(ctx, p.key).Result()
		if err != nil {
			return p.fallback(ctx, err)
		}
		// -1/-2 mean no expiry or already gone: poll again shortly
		if ttl <= 0 {
			ttl = minPoll
		}
		if err := p.sleep(ctx, ttl); err != nil {
			return err
		}
	}
}

func (p *RedisPacer) fallback(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.PacerWaits.WithLabelValues("redis_fallback").Inc()
	p.logger.Warn("redis pacer unavailable, using local pause", map[string]interface{}{
		"error":   cause,
		"pauseMs": p.pause.Milliseconds(),
	})
	return p.sleep(ctx, p.pause)
}
