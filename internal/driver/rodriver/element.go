package rodriver

import (
	"context"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/xkilldash9x/storewalk/internal/driver"
)

const (
	jsClick     = `() => { this.scrollIntoView({block: 'center', inline: 'nearest'}); this.click(); return true; }`
	jsClear     = `() => { if ('value' in this) this.value = ''; this.dispatchEvent(new Event('input', {bubbles: true})); this.dispatchEvent(new Event('change', {bubbles: true})); return true; }`
	jsSelected  = `() => !!(this.checked || this.selected)`
	jsAttribute = `(name) => {
  const prop = this[name];
  if (prop !== undefined && prop !== null && typeof prop !== 'object' && typeof prop !== 'function') return String(prop);
  const attr = this.getAttribute(name);
  return attr === null ? '' : attr;
}`
)

type element struct {
	d  *Driver
	el *rod.Element
}

var _ driver.Element = (*element)(nil)

func (e *element) handle(ctx context.Context) (*rod.Element, error) {
	if _, err := e.d.page(); err != nil {
		return nil, err
	}
	return e.el.Context(ctx), nil
}

func (e *element) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	el, err := e.handle(ctx)
	if err != nil {
		return nil, err
	}
	if err := by.Validate(); err != nil {
		return nil, err
	}
	by = by.Normalize()
	var found rod.Elements
	if by.Strategy == driver.StrategyXPath {
		found, err = el.ElementsX(by.Expr)
	} else {
		found, err = el.Elements(by.Expr)
	}
	if err != nil {
		return nil, e.d.fail(ctx, "find", err)
	}
	return e.d.wrap(found), nil
}

// Click uses a real mouse event and falls back to a scripted click when the
// element is covered or not yet interactable.
func (e *element) Click(ctx context.Context) error {
	el, err := e.handle(ctx)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return e.d.fail(ctx, "scroll", err)
	}
	clickErr := el.Click(proto.InputMouseButtonLeft, 1)
	if clickErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, err := el.Eval(jsClick); err != nil {
		return e.d.fail(ctx, "click", err)
	}
	return nil
}

func (e *element) Type(ctx context.Context, text string) error {
	el, err := e.handle(ctx)
	if err != nil {
		return err
	}
	parts := strings.Split(text, "\n")
	for i, part := range parts {
		if part != "" {
			if err := el.Input(part); err != nil {
				return e.d.fail(ctx, "type", err)
			}
		}
		if i < len(parts)-1 {
			if err := el.Type(input.Enter); err != nil {
				return e.d.fail(ctx, "press enter", err)
			}
		}
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	el, err := e.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := el.Eval(jsClear); err != nil {
		return e.d.fail(ctx, "clear", err)
	}
	return nil
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	el, err := e.handle(ctx)
	if err != nil {
		return false, err
	}
	visible, err := el.Visible()
	if err != nil {
		return false, e.d.fail(ctx, "visible", err)
	}
	return visible, nil
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	el, err := e.handle(ctx)
	if err != nil {
		return false, err
	}
	res, err := el.Eval(jsSelected)
	if err != nil {
		return false, e.d.fail(ctx, "selected", err)
	}
	return res.Value.Bool(), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	el, err := e.handle(ctx)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(jsAttribute, name)
	if err != nil {
		return "", e.d.fail(ctx, "attribute", err)
	}
	return res.Value.Str(), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	el, err := e.handle(ctx)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", e.d.fail(ctx, "text", err)
	}
	return strings.TrimSpace(text), nil
}
