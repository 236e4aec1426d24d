// Package readiness decides when a storefront page is usable. A page is
// ready only when every predicate of its Spec holds; each predicate is polled
// on a fixed cadence under its own timeout, all of them under one ceiling.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

// Status is the outcome of a readiness wait.
type Status string

const (
	Ready    Status = "ready"
	TimedOut Status = "timed_out"
)

// Check evaluates a condition once. An error counts as "not yet".
type Check func(ctx context.Context, d driver.Driver) (bool, error)

// Predicate is a named condition with its own timeout. A zero Timeout means
// the predicate may use whatever remains of the ceiling.
type Predicate struct {
	Name    string
	Timeout time.Duration
	Check   Check
}

// Spec is the composite readiness definition of one page.
type Spec struct {
	Name       string
	Predicates []Predicate
	Ceiling    time.Duration
	// Settle is slept once after every predicate holds.
	Settle time.Duration
}

// Result reports how a wait ended. It is a value, never an error: a page that
// does not become ready is a soft failure for the caller to annotate.
type Result struct {
	Spec    string
	Status  Status
	Failed  []string
	Elapsed time.Duration
	// Cause is the last error seen by a failed predicate, or the caller's
	// context error when the wait was cut short.
	Cause error
}

func (r Result) Ready() bool { return r.Status == Ready }

func (r Result) String() string {
	if r.Ready() {
		return fmt.Sprintf("%s ready in %s", r.Spec, r.Elapsed)
	}
	return fmt.Sprintf("%s timed out after %s waiting for %v", r.Spec, r.Elapsed, r.Failed)
}

// Engine evaluates readiness specs.
type Engine struct {
	logger   *zap.Logger
	interval time.Duration
	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine returns an engine that polls at most once per interval.
func NewEngine(logger *zap.Logger, interval time.Duration) *Engine {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Engine{
		logger:   logger.Named("readiness"),
		interval: interval,
		sleep:    sleepCtx,
	}
}

// AwaitReady evaluates spec against d. It never returns an error and never
// panics; a TimedOut result is logged at warn level.
func (e *Engine) AwaitReady(ctx context.Context, d driver.Driver, spec Spec) (res Result) {
	start := time.Now()
	res = Result{Spec: spec.Name, Status: TimedOut}

	defer func() {
		if r := recover(); r != nil {
			res.Status = TimedOut
			res.Cause = fmt.Errorf("readiness check panicked: %v", r)
		}
		res.Elapsed = time.Since(start)
		e.report(res)
	}()

	waitCtx := ctx
	if spec.Ceiling > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, spec.Ceiling)
		defer cancel()
	}

	for _, p := range spec.Predicates {
		if waitCtx.Err() != nil {
			res.Failed = append(res.Failed, p.Name)
			continue
		}
		if err := e.poll(waitCtx, p.Timeout, func(c context.Context) (bool, error) {
			return p.Check(c, d)
		}); err != nil {
			res.Failed = append(res.Failed, p.Name)
			res.Cause = err
		}
	}

	if len(res.Failed) > 0 {
		if err := ctx.Err(); err != nil {
			res.Cause = err
		} else if res.Cause == nil {
			res.Cause = ErrConditionTimeout
		}
		return res
	}

	if spec.Settle > 0 {
		if err := e.sleep(waitCtx, spec.Settle); err != nil && ctx.Err() != nil {
			res.Cause = ctx.Err()
			return res
		}
	}
	res.Status = Ready
	return res
}

// WaitFor polls cond until it holds or timeout elapses. It is the single
// element level wait used by page actions.
func (e *Engine) WaitFor(ctx context.Context, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	return e.poll(ctx, timeout, cond)
}

// ErrConditionTimeout is returned by WaitFor when the condition never held.
var ErrConditionTimeout = errors.New("condition not met before timeout")

func (e *Engine) poll(ctx context.Context, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(e.interval), 1)
	var lastErr error
	for {
		if err := limiter.Wait(pollCtx); err != nil {
			if pollCtx.Err() == nil {
				ok, err := e.lastProbe(pollCtx, cond)
				if err == nil && ok {
					return nil
				}
				if err != nil && pollCtx.Err() == nil {
					lastErr = err
				}
			}
			return e.pollFailure(ctx, lastErr)
		}
		ok, err := cond(pollCtx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if pollCtx.Err() != nil {
			return e.pollFailure(ctx, lastErr)
		}
	}
}

// lastProbe runs cond once more a quarter interval before the deadline the
// limiter refused to cross, so a predicate gets its whole timeout.
func (e *Engine) lastProbe(ctx context.Context, cond func(ctx context.Context) (bool, error)) (bool, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if wait := time.Until(deadline) - e.interval/4; wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return false, err
			}
		}
	}
	return cond(ctx)
}

func (e *Engine) pollFailure(parent context.Context, lastErr error) error {
	if err := parent.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrConditionTimeout, lastErr)
	}
	return ErrConditionTimeout
}

func (e *Engine) report(res Result) {
	if res.Ready() {
		e.logger.Debug("Page ready.",
			observability.Page(res.Spec),
			observability.Elapsed(res.Elapsed),
		)
		return
	}
	e.logger.Warn("Page readiness timed out; proceeding.",
		observability.Page(res.Spec),
		zap.Strings("failed_predicates", res.Failed),
		observability.Elapsed(res.Elapsed),
		zap.NamedError("cause", res.Cause),
	)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
