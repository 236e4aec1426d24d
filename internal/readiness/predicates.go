package readiness

import (
	"context"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Predicates builds standard checks on top of a locator resolver.
type Predicates struct {
	Resolver *locator.Resolver
}

// Absent holds while no candidate of loc matches a displayed element,
// e.g. a loading banner that has gone away.
func (p Predicates) Absent(name string, loc locator.Locator, timeout time.Duration) Predicate {
	return Predicate{Name: name, Timeout: timeout, Check: func(ctx context.Context, d driver.Driver) (bool, error) {
		_, _, err := p.Resolver.ResolveDisplayed(ctx, d, loc)
		if locator.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}}
}

// Present holds once any candidate of loc matches an element in the DOM.
func (p Predicates) Present(name string, loc locator.Locator, timeout time.Duration) Predicate {
	return Predicate{Name: name, Timeout: timeout, Check: func(ctx context.Context, d driver.Driver) (bool, error) {
		return found(p.Resolver.Resolve(ctx, d, loc))
	}}
}

// Clickable holds once any candidate of loc matches a displayed element.
func (p Predicates) Clickable(name string, loc locator.Locator, timeout time.Duration) Predicate {
	return Predicate{Name: name, Timeout: timeout, Check: func(ctx context.Context, d driver.Driver) (bool, error) {
		return found(p.Resolver.ResolveDisplayed(ctx, d, loc))
	}}
}

// AnyPresent holds once any of the locators matches, e.g. cart rows or the
// empty cart notice.
func (p Predicates) AnyPresent(name string, timeout time.Duration, locs ...locator.Locator) Predicate {
	return Predicate{Name: name, Timeout: timeout, Check: func(ctx context.Context, d driver.Driver) (bool, error) {
		var lastErr error
		for _, loc := range locs {
			ok, err := found(p.Resolver.Resolve(ctx, d, loc))
			if ok {
				return true, nil
			}
			if err != nil {
				lastErr = err
			}
		}
		return false, lastErr
	}}
}

// DocumentComplete holds once document.readyState reports "complete".
func DocumentComplete(timeout time.Duration) Predicate {
	return Predicate{Name: "document_complete", Timeout: timeout, Check: func(ctx context.Context, d driver.Driver) (bool, error) {
		raw, err := d.ExecuteScript(ctx, driver.ScriptReadyState)
		if err != nil {
			return false, err
		}
		var state string
		if err := json.Unmarshal(raw, &state); err != nil {
			return false, err
		}
		return strings.EqualFold(state, "complete"), nil
	}}
}

func found(_ driver.Element, _ driver.By, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if locator.IsNotFound(err) {
		return false, nil
	}
	return false, err
}
