// Package retry executes operations under a bounded backoff policy with
// transient/terminal error classification.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 60 * time.Second
	DefaultJitter     = 0.25
)

// Policy bounds how an operation is retried. MaxRetries counts retries after
// the first attempt, so MaxRetries=3 allows four attempts total.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

// Attempt describes one execution of a retried operation, reported through
// the OnAttempt hook for audit trails and metrics.
type Attempt struct {
	Stage    string
	Number   int           // 1-based
	Err      error         // nil when the attempt succeeded
	Decision Decision      // zero value when Err is nil
	Delay    time.Duration // backoff before the next attempt, 0 when none follows
}

type Executor struct {
	policy    Policy
	logger    *slog.Logger
	onAttempt func(Attempt)

	// injectable for tests
	sleepFn func(ctx context.Context, d time.Duration) error
	randFn  func() float64
}

type ExecutorOption func(*Executor)

// WithOnAttempt registers a hook invoked after every attempt, successful or
// not. The hook runs on the calling goroutine between attempts; keep it
// fast, since its latency adds to the retry schedule.
func WithOnAttempt(fn func(Attempt)) ExecutorOption {
	return func(e *Executor) { e.onAttempt = fn }
}

// NewExecutor normalizes the policy: negative retries collapse to zero, a
// zero BaseDelay is kept (tests rely on zero-delay policies), MaxDelay is
// raised to BaseDelay when lower, and jitter outside [0,1) is disabled.
func NewExecutor(policy Policy, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay < 0 {
		policy.BaseDelay = 0
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	if policy.Jitter < 0 || policy.Jitter >= 1 {
		policy.Jitter = 0
	}
	e := &Executor{
		policy: policy,
		logger: logger.With("component", "retry_executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs op under the retry policy, discarding any result value.
func (e *Executor) Do(ctx context.Context, stage string, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, e, stage, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue runs op until it succeeds, fails terminally, or exhausts the
// policy's attempts. Terminal errors return immediately; transient errors
// back off exponentially between attempts. The returned error wraps the
// underlying cause so errors.Is and errors.As still see it.
func DoValue[T any](ctx context.Context, e *Executor, stage string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := e.policy.MaxRetries + 1

	var lastErr error
	lastDecision := Decision{
		Class:  ClassTerminal,
		Reason: "unset",
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			e.notify(Attempt{Stage: stage, Number: attempt})
			if attempt > 1 {
				e.logger.Info("recovered after retry", "stage", stage, "attempt", attempt)
			}
			return v, nil
		}
		lastErr = err
		lastDecision = Classify(err)

		if ctx.Err() != nil {
			e.notify(Attempt{Stage: stage, Number: attempt, Err: err, Decision: lastDecision})
			return zero, ctx.Err()
		}
		if !lastDecision.IsTransient() {
			e.notify(Attempt{Stage: stage, Number: attempt, Err: err, Decision: lastDecision})
			return zero, fmt.Errorf("terminal_failure stage=%s attempt=%d reason=%s: %w", stage, attempt, lastDecision.Reason, err)
		}
		if attempt == attempts {
			e.notify(Attempt{Stage: stage, Number: attempt, Err: err, Decision: lastDecision})
			break
		}

		delay := e.retryDelay(attempt)
		e.notify(Attempt{Stage: stage, Number: attempt, Err: err, Decision: lastDecision, Delay: delay})
		e.logger.Warn("transient failure; retrying",
			"stage", stage,
			"classification", lastDecision.Class,
			"classification_reason", lastDecision.Reason,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, fmt.Errorf("transient_recovery_exhausted stage=%s attempts=%d reason=%s: %w", stage, attempts, lastDecision.Reason, lastErr)
}

func (e *Executor) notify(a Attempt) {
	if e.onAttempt != nil {
		e.onAttempt(a)
	}
}

// retryDelay returns min(BaseDelay * 2^(attempt-1), MaxDelay) with optional
// multiplicative jitter, never exceeding MaxDelay.
func (e *Executor) retryDelay(attempt int) time.Duration {
	base := e.policy.BaseDelay
	max := e.policy.MaxDelay

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	if delay > 0 && e.policy.Jitter > 0 {
		factor := 1 - e.policy.Jitter + 2*e.policy.Jitter*e.rand()
		delay = time.Duration(float64(delay) * factor)
		if delay > max {
			delay = max
		}
	}
	return delay
}

func (e *Executor) rand() float64 {
	if e.randFn != nil {
		return e.randFn()
	}
	return rand.Float64()
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if e.sleepFn != nil {
		return e.sleepFn(ctx, d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
