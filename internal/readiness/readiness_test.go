package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/driver/drivertest"
	"github.com/xkilldash9x/storewalk/internal/locator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const interval = 2 * time.Millisecond

var (
	loadingBy = driver.ByXPath("//*[contains(text(), 'A shop is on its way')]")
	mainBy    = driver.ByCSS("main, #main, .page-content, .products")
	clickBy   = driver.ByCSS("a, button, input, .product")
)

func fixture(t *testing.T) (*drivertest.Driver, *drivertest.Page, Predicates) {
	t.Helper()
	page := drivertest.NewPage("https://shop.test/")
	d := drivertest.New(page)
	d.Goto(page.URL)
	return d, page, Predicates{Resolver: locator.NewResolver(zaptest.NewLogger(t))}
}

func shopSpec(p Predicates, ceiling time.Duration) Spec {
	return Spec{
		Name:    "home",
		Ceiling: ceiling,
		Predicates: []Predicate{
			p.Absent("loader_gone", locator.New("loader", loadingBy), 0),
			p.Present("main_content", locator.New("main", mainBy), 0),
			p.Clickable("interactive", locator.New("interactive", clickBy), 0),
			DocumentComplete(0),
		},
	}
}

func TestAwaitReady_AllPredicatesHold(t *testing.T) {
	d, page, p := fixture(t)
	page.Add(mainBy, drivertest.El("")).Add(clickBy, drivertest.El("Sign in"))

	var slept time.Duration
	e := NewEngine(zaptest.NewLogger(t), interval)
	e.sleep = func(ctx context.Context, dur time.Duration) error {
		slept += dur
		return nil
	}

	spec := shopSpec(p, time.Second)
	spec.Settle = 1500 * time.Millisecond
	res := e.AwaitReady(context.Background(), d, spec)

	assert.True(t, res.Ready(), res.String())
	assert.Empty(t, res.Failed)
	assert.Equal(t, 1500*time.Millisecond, slept, "exactly one settle delay")
}

func TestAwaitReady_PartialSatisfactionTimesOut(t *testing.T) {
	d, page, p := fixture(t)
	// Main content never appears; everything else holds.
	page.Add(clickBy, drivertest.El("Sign in"))

	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEngine(zap.New(core), interval)

	settled := false
	e.sleep = func(context.Context, time.Duration) error { settled = true; return nil }

	spec := shopSpec(p, 500*time.Millisecond)
	spec.Predicates[1].Timeout = 30 * time.Millisecond
	spec.Settle = time.Second
	res := e.AwaitReady(context.Background(), d, spec)

	assert.Equal(t, TimedOut, res.Status)
	assert.Equal(t, []string{"main_content"}, res.Failed)
	assert.ErrorIs(t, res.Cause, ErrConditionTimeout)
	assert.False(t, settled, "no settle delay when the page is not ready")

	entries := logs.FilterMessage("Page readiness timed out; proceeding.").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "home", fields["page"])
	assert.Equal(t, []interface{}{"main_content"}, fields["failed_predicates"])
}

func TestAwaitReady_LoaderEventuallyDisappears(t *testing.T) {
	d, page, p := fixture(t)
	page.Add(mainBy, drivertest.El("")).Add(clickBy, drivertest.El("Sign in"))
	page.Add(loadingBy, drivertest.El("A shop is on its way"))

	var probes atomic.Int32
	loader := p.Absent("loader_gone", locator.New("loader", loadingBy), 0)
	inner := loader.Check
	loader.Check = func(ctx context.Context, drv driver.Driver) (bool, error) {
		if probes.Add(1) == 3 {
			d.Do(func() { page.Remove(loadingBy) })
		}
		return inner(ctx, drv)
	}

	e := NewEngine(zaptest.NewLogger(t), interval)
	res := e.AwaitReady(context.Background(), d, Spec{Name: "home", Ceiling: time.Second, Predicates: []Predicate{loader}})

	assert.True(t, res.Ready())
	assert.Equal(t, int32(3), probes.Load(), "the probe that saw the loader leave ends the wait")
}

func TestAwaitReady_DocumentStillLoading(t *testing.T) {
	d, page, _ := fixture(t)
	page.ReadyState = "interactive"

	e := NewEngine(zaptest.NewLogger(t), interval)
	res := e.AwaitReady(context.Background(), d, Spec{
		Name:       "cart",
		Ceiling:    40 * time.Millisecond,
		Predicates: []Predicate{DocumentComplete(0)},
	})
	assert.Equal(t, TimedOut, res.Status)
	assert.Equal(t, []string{"document_complete"}, res.Failed)
	assert.Less(t, res.Elapsed, time.Second)
}

func TestAwaitReady_CheckErrorsAreNotFatal(t *testing.T) {
	d, _, _ := fixture(t)
	boom := errors.New("protocol error")
	var calls atomic.Int32
	flaky := Predicate{Name: "flaky", Check: func(context.Context, driver.Driver) (bool, error) {
		if calls.Add(1) < 3 {
			return false, boom
		}
		return true, nil
	}}

	e := NewEngine(zaptest.NewLogger(t), interval)
	res := e.AwaitReady(context.Background(), d, Spec{Name: "flaky", Ceiling: time.Second, Predicates: []Predicate{flaky}})
	assert.True(t, res.Ready())

	always := Predicate{Name: "broken", Timeout: 20 * time.Millisecond, Check: func(context.Context, driver.Driver) (bool, error) {
		return false, boom
	}}
	res = e.AwaitReady(context.Background(), d, Spec{Name: "broken", Ceiling: time.Second, Predicates: []Predicate{always}})
	assert.Equal(t, TimedOut, res.Status)
	assert.ErrorIs(t, res.Cause, boom)
}

func TestAwaitReady_PanickingCheckIsContained(t *testing.T) {
	d, _, _ := fixture(t)
	e := NewEngine(zaptest.NewLogger(t), interval)
	bad := Predicate{Name: "bad", Check: func(context.Context, driver.Driver) (bool, error) { panic("nil node") }}

	var res Result
	require.NotPanics(t, func() {
		res = e.AwaitReady(context.Background(), d, Spec{Name: "bad", Ceiling: time.Second, Predicates: []Predicate{bad}})
	})
	assert.Equal(t, TimedOut, res.Status)
	assert.Contains(t, res.Cause.Error(), "panicked")
}

func TestAwaitReady_ParentCancellation(t *testing.T) {
	d, _, p := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(zaptest.NewLogger(t), interval)
	res := e.AwaitReady(ctx, d, shopSpec(p, time.Second))
	assert.Equal(t, TimedOut, res.Status)
	assert.ErrorIs(t, res.Cause, context.Canceled)
	assert.Len(t, res.Failed, 4)
}

func TestAwaitReady_CeilingBoundsEveryPredicate(t *testing.T) {
	d, _, p := fixture(t)
	e := NewEngine(zaptest.NewLogger(t), interval)

	spec := Spec{
		Name:    "slow",
		Ceiling: 50 * time.Millisecond,
		Predicates: []Predicate{
			p.Present("never_a", locator.New("a", driver.ByCSS(".a")), time.Hour),
			p.Present("never_b", locator.New("b", driver.ByCSS(".b")), time.Hour),
		},
	}
	start := time.Now()
	res := e.AwaitReady(context.Background(), d, spec)
	assert.Equal(t, TimedOut, res.Status)
	assert.Equal(t, []string{"never_a", "never_b"}, res.Failed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAnyPresent(t *testing.T) {
	d, page, p := fixture(t)
	items := locator.New("cart.items", driver.ByCSS(".cart-item"))
	empty := locator.New("cart.empty", driver.ByCSS(".no-items"))
	page.Add(driver.ByCSS(".no-items"), drivertest.El("There are no more items in your cart"))

	ok, err := p.AnyPresent("cart_contents", 0, items, empty).Check(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, ok)

	page.Remove(driver.ByCSS(".no-items"))
	ok, err = p.AnyPresent("cart_contents", 0, items, empty).Check(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaitFor(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), interval)

	var n atomic.Int32
	err := e.WaitFor(context.Background(), time.Second, func(context.Context) (bool, error) {
		return n.Add(1) >= 3, nil
	})
	require.NoError(t, err)

	err = e.WaitFor(context.Background(), 15*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrConditionTimeout)
}

func TestWaitFor_ProbesAgainBeforeDeadline(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t), 200*time.Millisecond)

	// Ticks land at 0, 200 and 400ms; the next one would overshoot 500ms.
	var n atomic.Int32
	start := time.Now()
	err := e.WaitFor(context.Background(), 500*time.Millisecond, func(context.Context) (bool, error) {
		return n.Add(1) >= 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(4), n.Load())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
