// Package pages models the storefront as a chain of page states. A state is
// only handed out after its readiness spec has been evaluated, and it is
// spent as soon as one of its transitions fires.
package pages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/observability"
	"github.com/xkilldash9x/storewalk/internal/readiness"
)

// ErrStateConsumed is returned by any action on a state whose transition
// already fired.
var ErrStateConsumed = errors.New("page state already consumed by a transition")

// Timings bounds every wait performed by the page states.
type Timings struct {
	Ceiling          time.Duration
	PredicateTimeout time.Duration
	ContentTimeout   time.Duration
	PollInterval     time.Duration
	Settle           time.Duration

	ElementTimeout  time.Duration
	ModalTimeout    time.Duration
	StrengthTimeout time.Duration
	FrameTimeout    time.Duration
}

// TimingsFrom collects the readiness and action timeouts of a configuration.
func TimingsFrom(r config.ReadinessConfig, a config.ActionsConfig) Timings {
	return Timings{
		Ceiling:          r.Ceiling,
		PredicateTimeout: r.PredicateTimeout,
		ContentTimeout:   r.ContentTimeout,
		PollInterval:     r.PollInterval,
		Settle:           r.Settle,
		ElementTimeout:   a.ElementTimeout,
		ModalTimeout:     a.ModalTimeout,
		StrengthTimeout:  a.StrengthTimeout,
		FrameTimeout:     a.FrameTimeout,
	}
}

// Toolkit is the capability every page state is composed with. It is bound
// to one session and is not safe for concurrent use.
type Toolkit struct {
	Driver    driver.Driver
	Resolver  *locator.Resolver
	Readiness *readiness.Engine
	Catalog   Catalog
	Timings   Timings
	Logger    *zap.Logger

	predicates readiness.Predicates
}

// NewToolkit wires a resolver and a readiness engine around d.
func NewToolkit(d driver.Driver, catalog Catalog, timings Timings, logger *zap.Logger) *Toolkit {
	if logger == nil {
		logger = observability.GetLogger()
	}
	resolver := locator.NewResolver(logger)
	return &Toolkit{
		Driver:     d,
		Resolver:   resolver,
		Readiness:  readiness.NewEngine(logger, timings.PollInterval),
		Catalog:    catalog,
		Timings:    timings,
		Logger:     logger.Named("pages"),
		predicates: readiness.Predicates{Resolver: resolver},
	}
}

// shopSpec is the composite wait shared by storefront pages: the loading
// banner is gone, content and a control are on screen and the document has
// finished loading. extra predicates run after the shared ones.
func (tk *Toolkit) shopSpec(name string, extra ...readiness.Predicate) readiness.Spec {
	t := tk.Timings
	c := tk.Catalog
	preds := []readiness.Predicate{
		tk.predicates.Absent("loading_absent", c.Loading, t.PredicateTimeout),
		tk.predicates.Present("content_present", c.MainContent, t.PredicateTimeout),
		tk.predicates.Clickable("control_clickable", c.Interactive, t.PredicateTimeout),
		readiness.DocumentComplete(t.PredicateTimeout),
	}
	return readiness.Spec{
		Name:       name,
		Predicates: append(preds, extra...),
		Ceiling:    t.Ceiling,
		Settle:     t.Settle,
	}
}

func (tk *Toolkit) await(ctx context.Context, spec readiness.Spec) readiness.Result {
	return tk.Readiness.AwaitReady(ctx, tk.Driver, spec)
}

// waitFor polls scope for loc until it resolves or timeout elapses. Running
// out of time yields the resolver's NotFoundError; a broken session ends the
// wait at once.
func (tk *Toolkit) waitFor(ctx context.Context, scope driver.Searcher, loc locator.Locator, timeout time.Duration, displayed bool) (driver.Element, driver.By, error) {
	var (
		el      driver.Element
		by      driver.By
		lastErr error
	)
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err := tk.Readiness.WaitFor(waitCtx, timeout, func(ctx context.Context) (bool, error) {
		var err error
		if displayed {
			el, by, err = tk.Resolver.ResolveDisplayed(ctx, scope, loc)
		} else {
			el, by, err = tk.Resolver.Resolve(ctx, scope, loc)
		}
		if err != nil {
			// A lookup cut off by the wait's own deadline says nothing
			// about the element.
			if ctx.Err() != nil {
				return false, nil
			}
			lastErr = err
			if driver.IsSessionFailure(err) {
				cancel()
			}
			return false, nil
		}
		return true, nil
	})
	if err == nil {
		return el, by, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, driver.By{}, ctxErr
	}
	if lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, driver.By{}, lastErr
	}
	return nil, driver.By{}, &locator.NotFoundError{Locator: loc}
}

// find resolves loc once, without waiting.
func (tk *Toolkit) find(ctx context.Context, loc locator.Locator) (driver.Element, error) {
	el, _, err := tk.Resolver.Resolve(ctx, tk.Driver, loc)
	return el, err
}

// click scrolls el into view and clicks it. A failed scroll is not fatal.
func (tk *Toolkit) click(ctx context.Context, el driver.Element) error {
	if _, err := tk.Driver.ExecuteScript(ctx, driver.ScriptScrollIntoView, el); err != nil {
		if driver.IsSessionFailure(err) || ctx.Err() != nil {
			return err
		}
		tk.Logger.Debug("Scroll into view failed.", zap.Error(err))
	}
	return el.Click(ctx)
}

// clickFirst resolves loc and clicks the match. When the click itself is
// rejected, the remaining candidates are tried in order.
func (tk *Toolkit) clickFirst(ctx context.Context, loc locator.Locator, timeout time.Duration) error {
	el, by, err := tk.waitFor(ctx, tk.Driver, loc, timeout, false)
	if err != nil {
		return err
	}
	for {
		err = tk.click(ctx, el)
		if err == nil || driver.IsSessionFailure(err) || ctx.Err() != nil {
			return err
		}
		rest := remaining(loc, by)
		if len(rest.Candidates) == 0 {
			return fmt.Errorf("click %s: %w", loc.Name, err)
		}
		tk.Logger.Info("Click rejected; trying next candidate.",
			observability.Locator(loc.Name), zap.Stringer("candidate", by), zap.Error(err))
		if el, by, err = tk.Resolver.Resolve(ctx, tk.Driver, rest); err != nil {
			return err
		}
		loc = rest
	}
}

// remaining returns the candidates of loc after by.
func remaining(loc locator.Locator, by driver.By) locator.Locator {
	for i, c := range loc.Candidates {
		if c == by {
			return locator.Locator{Name: loc.Name, Candidates: loc.Candidates[i+1:]}
		}
	}
	return locator.Locator{Name: loc.Name}
}

// fill clears el and types text into it.
func (tk *Toolkit) fill(ctx context.Context, el driver.Element, text string) error {
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.Type(ctx, text)
}

// fillField waits for loc and fills it. Every failure is hard.
func (tk *Toolkit) fillField(ctx context.Context, loc locator.Locator, text string) error {
	el, _, err := tk.waitFor(ctx, tk.Driver, loc, tk.Timings.ElementTimeout, false)
	if err != nil {
		return err
	}
	if err := tk.fill(ctx, el, text); err != nil {
		return fmt.Errorf("fill %s: %w", loc.Name, err)
	}
	return nil
}

// ensureChecked ticks the checkbox matched by loc unless it is already ticked.
// It reports whether a click was needed.
func (tk *Toolkit) ensureChecked(ctx context.Context, loc locator.Locator) (bool, error) {
	el, err := tk.find(ctx, loc)
	if err != nil {
		return false, err
	}
	selected, err := el.IsSelected(ctx)
	if err != nil {
		return false, err
	}
	if selected {
		return false, nil
	}
	if err := tk.click(ctx, el); err != nil {
		return false, err
	}
	return true, nil
}

// lifecycle tracks whether a state may still act.
type lifecycle struct {
	name     string
	consumed bool
	entry    readiness.Result
	logger   *zap.Logger
}

func (tk *Toolkit) enter(ctx context.Context, spec readiness.Spec) lifecycle {
	return lifecycle{
		name:   spec.Name,
		entry:  tk.await(ctx, spec),
		logger: tk.Logger.With(observability.Page(spec.Name)),
	}
}

func (l *lifecycle) check() error {
	if l.consumed {
		return fmt.Errorf("%s: %w", l.name, ErrStateConsumed)
	}
	return nil
}

func (l *lifecycle) consume() {
	l.consumed = true
}

// Entry returns the readiness result the state was entered with.
func (l *lifecycle) Entry() readiness.Result { return l.entry }

// PageName returns the page name.
func (l *lifecycle) PageName() string { return l.name }
