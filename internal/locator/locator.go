// Package locator resolves named elements through an ordered list of
// fallback expressions so a page survives theme and template variation.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

// Locator is a named, ordered, non-empty list of candidate expressions.
type Locator struct {
	Name       string
	Candidates []driver.By
}

// New builds a Locator. The first candidate is mandatory so the list is never empty.
func New(name string, first driver.By, rest ...driver.By) Locator {
	return Locator{Name: name, Candidates: append([]driver.By{first}, rest...)}
}

// Validate rejects locators with no candidates or malformed expressions.
func (l Locator) Validate() error {
	if len(l.Candidates) == 0 {
		return fmt.Errorf("locator %q has no candidates", l.Name)
	}
	for _, c := range l.Candidates {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("locator %q: %w", l.Name, err)
		}
	}
	return nil
}

func (l Locator) String() string {
	parts := make([]string, len(l.Candidates))
	for i, c := range l.Candidates {
		parts[i] = c.String()
	}
	return l.Name + "[" + strings.Join(parts, " | ") + "]"
}

// Attempt records why a single candidate did not resolve.
type Attempt struct {
	By  driver.By
	Err error
}

// NotFoundError is returned once every candidate of a locator is exhausted.
type NotFoundError struct {
	Locator  Locator
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "element %q not found after %d candidates", e.Locator.Name, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			fmt.Fprintf(&b, "; %s: %v", a.By, a.Err)
		}
	}
	return b.String()
}

// Is lets callers match with errors.Is(err, driver.ErrNoSuchElement).
func (e *NotFoundError) Is(target error) bool {
	return target == driver.ErrNoSuchElement
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Resolver walks locator candidates in order.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver returns a resolver that logs candidate misses at debug level.
func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = observability.GetLogger()
	}
	return &Resolver{logger: logger.Named("locator")}
}

// Resolve returns the first element produced by the first candidate that
// matches anything inside scope, together with the candidate that matched.
func (r *Resolver) Resolve(ctx context.Context, scope driver.Searcher, loc Locator) (driver.Element, driver.By, error) {
	return r.resolve(ctx, scope, loc, false)
}

// ResolveDisplayed is Resolve restricted to elements that are currently displayed.
// Every element of a candidate is considered before moving to the next one.
func (r *Resolver) ResolveDisplayed(ctx context.Context, scope driver.Searcher, loc Locator) (driver.Element, driver.By, error) {
	return r.resolve(ctx, scope, loc, true)
}

// ResolveAll returns every element of the first candidate with a non-empty result.
func (r *Resolver) ResolveAll(ctx context.Context, scope driver.Searcher, loc Locator) ([]driver.Element, driver.By, error) {
	attempts := make([]Attempt, 0, len(loc.Candidates))
	for _, by := range loc.Candidates {
		elements, err := scope.FindAll(ctx, by)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, driver.By{}, ctxErr
		}
		if err != nil {
			attempts = append(attempts, Attempt{By: by, Err: err})
			r.miss(loc, by, err)
			continue
		}
		if len(elements) > 0 {
			return elements, by, nil
		}
		attempts = append(attempts, Attempt{By: by})
	}
	return nil, driver.By{}, &NotFoundError{Locator: loc, Attempts: attempts}
}

// Count returns the number of elements matched by the first productive
// candidate, and zero when none match.
func (r *Resolver) Count(ctx context.Context, scope driver.Searcher, loc Locator) (int, error) {
	elements, _, err := r.ResolveAll(ctx, scope, loc)
	if IsNotFound(err) {
		return 0, nil
	}
	return len(elements), err
}

func (r *Resolver) resolve(ctx context.Context, scope driver.Searcher, loc Locator, displayed bool) (driver.Element, driver.By, error) {
	attempts := make([]Attempt, 0, len(loc.Candidates))
	for _, by := range loc.Candidates {
		elements, err := scope.FindAll(ctx, by)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, driver.By{}, ctxErr
		}
		if err != nil {
			attempts = append(attempts, Attempt{By: by, Err: err})
			r.miss(loc, by, err)
			continue
		}
		if !displayed {
			if len(elements) > 0 {
				return elements[0], by, nil
			}
			attempts = append(attempts, Attempt{By: by})
			continue
		}

		var lastErr error
		for _, el := range elements {
			visible, err := el.IsDisplayed(ctx)
			if err != nil {
				lastErr = err
				continue
			}
			if visible {
				return el, by, nil
			}
		}
		attempts = append(attempts, Attempt{By: by, Err: lastErr})
	}
	return nil, driver.By{}, &NotFoundError{Locator: loc, Attempts: attempts}
}

func (r *Resolver) miss(loc Locator, by driver.By, err error) {
	r.logger.Debug("Locator candidate failed; trying next.",
		observability.Locator(loc.Name),
		zap.Stringer("candidate", by),
		zap.Error(err),
	)
}
