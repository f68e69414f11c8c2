// Package retry implements the backoff discipline applied to external calls.
//
// The upstream rate-limit window resets on a fixed short cycle, so a shallow
// backoff burns attempts inside the same window. The steep default base (7)
// all but guarantees the next attempt lands in a fresh window:
// 1s, 7s, 49s, 343s, ...
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Class partitions failures into retryable and fatal.
type Class int

const (
	// ClassRetryable covers transient failures: rate limits, server
	// unavailability, timeouts.
	ClassRetryable Class = iota
	// ClassFatal covers deterministic failures: auth, malformed requests,
	// validation and malformed-output errors. Never retried.
	ClassFatal
)

// Classifier maps an error to a Class.
type Classifier func(error) Class

// Policy holds the retry knobs. The zero value is unusable; use Default or
// build one from configuration.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
}

// Default mirrors the upstream client defaults: 5 attempts, 1s initial
// delay, base 7.
func Default() Policy {
	return Policy{MaxAttempts: 5, InitialDelay: time.Second, Base: 7}
}

// Delay returns the sleep before attempt n+1 (n is zero-based):
// initial * base^n.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(p.Base, float64(attempt)))
}

// ExhaustedError is returned when all attempts failed with retryable errors.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// sleeper is swapped out in tests.
type sleeper func(context.Context, time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op, retrying retryable failures per the policy. A fatal
// classification short-circuits immediately with the original error; context
// cancellation aborts between attempts.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, classify Classifier) error {
	return p.do(ctx, op, classify, sleepCtx)
}

func (p Policy) do(ctx context.Context, op func(context.Context) error, classify Classifier, sleep sleeper) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if classify == nil {
		classify = func(error) Class { return ClassRetryable }
	}
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.Delay(attempt-1)); err != nil {
				return err
			}
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if classify(err) == ClassFatal {
			return err
		}
		last = err
	}
	return &ExhaustedError{Attempts: p.MaxAttempts, Last: last}
}
