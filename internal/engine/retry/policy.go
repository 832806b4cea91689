// Package retry wraps one remote call with classification-driven backoff.
package retry

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"comment-insights/internal/common/errors"
)

// Class is the retry-relevant category of a failure.
type Class int

const (
	Unclassified Class = iota
	RateLimited
	Transient
	Fatal
	Parse
)

func (c Class) String() string {
	switch c {
	case RateLimited:
		return "rate_limited"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Parse:
		return "parse"
	default:
		return "unclassified"
	}
}

// Classify maps an error from the remote client onto a Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Unclassified
	case stderrors.Is(err, errors.ErrRateLimited):
		return RateLimited
	case stderrors.Is(err, errors.ErrTransientRemote),
		stderrors.Is(err, errors.ErrRemoteTimeout),
		stderrors.Is(err, context.DeadlineExceeded):
		return Transient
	case stderrors.Is(err, errors.ErrFatalRemote),
		stderrors.Is(err, errors.ErrConfiguration),
		stderrors.Is(err, context.Canceled):
		return Fatal
	case stderrors.Is(err, errors.ErrParse):
		return Parse
	default:
		return Unclassified
	}
}

// Attempt describes an upcoming retry. It only lives inside Execute and the
// OnRetry hook.
type Attempt struct {
	Number int           // attempt about to run, 2 for the first retry
	Delay  time.Duration // pause taken before it
	Class  Class         // classification of the failure that triggered it
	Err    error
}

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 0.2
)

// Policy bounds the attempts spent on one call. The zero value is not
// usable; build it with NewPolicy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	Sleep    func(ctx context.Context, d time.Duration) error
	Rand     func() float64
	Classify func(error) Class
	OnRetry  func(Attempt)
}

func NewPolicy(maxAttempts int, base, maxDelay time.Duration, jitter float64) *Policy {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if jitter < 0 || jitter > 1 {
		jitter = DefaultJitter
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
		Jitter:      jitter,
		Sleep:       sleepContext,
		Rand:        rand.Float64,
		Classify:    Classify,
	}
}

// Limit is the total number of attempts a failure of class c may consume.
func (p *Policy) Limit(c Class) int {
	switch c {
	case Fatal:
		return 1
	case Parse, Unclassified:
		return min(2, p.MaxAttempts)
	default:
		return p.MaxAttempts
	}
}

// Backoff is the pause before retry number n (1 for the first retry):
// BaseDelay * 2^(n-1), capped at MaxDelay. Rate-limited failures add
// ±Jitter of random spread.
func (p *Policy) Backoff(n int, c Class) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if c == RateLimited && p.Jitter > 0 {
		r := 0.5
		if p.Rand != nil {
			r = p.Rand()
		}
		d *= 1 + p.Jitter*(2*r-1)
	}
	if ceiling := float64(p.MaxDelay); d > ceiling {
		d = ceiling
	}
	return time.Duration(math.Round(d))
}

// Execute runs op until it succeeds, its failure class runs out of attempts,
// or ctx is done. The last op error is returned unchanged so callers can
// still match it with errors.Is.
func Execute[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		class := classify(err)
		if n >= p.Limit(class) {
			return zero, err
		}

		delay := p.Backoff(n, class)
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Number: n + 1, Delay: delay, Class: class, Err: err})
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
