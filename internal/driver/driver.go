// Package driver defines the narrow browser capability the journey machinery is
// written against. Concrete backends live in the cdp, rodriver and pwdriver
// subpackages; drivertest provides an in-memory implementation for tests.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Strategy names how a locator expression is interpreted.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
	StrategyName  Strategy = "name"
	StrategyID    Strategy = "id"
)

// By is a single locator expression.
type By struct {
	Strategy Strategy
	Expr     string
}

func ByCSS(expr string) By   { return By{Strategy: StrategyCSS, Expr: expr} }
func ByXPath(expr string) By { return By{Strategy: StrategyXPath, Expr: expr} }
func ByName(name string) By  { return By{Strategy: StrategyName, Expr: name} }
func ByID(id string) By      { return By{Strategy: StrategyID, Expr: id} }

func (b By) String() string {
	return string(b.Strategy) + "=" + b.Expr
}

// Normalize rewrites name and id strategies into CSS so backends only have to
// understand CSS and XPath.
func (b By) Normalize() By {
	switch b.Strategy {
	case StrategyName:
		return ByCSS("[name=" + strconv.Quote(b.Expr) + "]")
	case StrategyID:
		return ByCSS("[id=" + strconv.Quote(b.Expr) + "]")
	default:
		return b
	}
}

// Validate reports whether the expression can be handed to a backend.
func (b By) Validate() error {
	switch b.Strategy {
	case StrategyCSS, StrategyXPath, StrategyName, StrategyID:
	default:
		return fmt.Errorf("unknown locator strategy %q", b.Strategy)
	}
	if strings.TrimSpace(b.Expr) == "" {
		return fmt.Errorf("empty %s expression", b.Strategy)
	}
	return nil
}

// Searcher finds elements without waiting. An empty result is not an error.
type Searcher interface {
	FindAll(ctx context.Context, by By) ([]Element, error)
}

// Element is a handle to a node in the active document.
type Element interface {
	Searcher

	Click(ctx context.Context) error
	// Type sends text to the element. A "\n" in text presses Enter.
	Type(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	IsDisplayed(ctx context.Context) (bool, error)
	// IsSelected reports the checked state of checkboxes and radios and the
	// selected state of options.
	IsSelected(ctx context.Context) (bool, error)
	// Attribute returns the live property when one exists (value, src, href)
	// and falls back to the markup attribute. Missing attributes yield "".
	Attribute(ctx context.Context, name string) (string, error)
	Text(ctx context.Context) (string, error)
}

// Driver is an open browser session.
type Driver interface {
	Searcher

	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the address of the active browsing context, which is
	// the entered frame after SwitchToFrame.
	CurrentURL(ctx context.Context) (string, error)
	// ExecuteScript runs a function body. Positional arguments are available as
	// arguments[i]; Element arguments are passed as live nodes.
	ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	// SwitchToFrame enters the index-th child frame of the top document.
	SwitchToFrame(ctx context.Context, index int) error
	SwitchToDefault(ctx context.Context) error
	Close(ctx context.Context) error
}

// Opener acquires a fresh session. Every successful Open must be paired with
// a Close on the returned Driver.
type Opener interface {
	Open(ctx context.Context) (Driver, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Driver, error)

func (f OpenerFunc) Open(ctx context.Context) (Driver, error) { return f(ctx) }

// FindOne returns the first element matched by by, or ErrNoSuchElement.
func FindOne(ctx context.Context, s Searcher, by By) (Element, error) {
	elements, err := s.FindAll(ctx, by)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, by)
	}
	return elements[0], nil
}
