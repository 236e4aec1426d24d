package pwdriver

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/storewalk/internal/driver"
)

const (
	jsClick     = `el => { el.scrollIntoView({block: 'center', inline: 'nearest'}); el.click(); return true; }`
	jsSelected  = `el => !!(el.checked || el.selected)`
	jsAttribute = `(el, name) => {
  const prop = el[name];
  if (prop !== undefined && prop !== null && typeof prop !== 'object' && typeof prop !== 'function') return String(prop);
  const attr = el.getAttribute(name);
  return attr === null ? '' : attr;
}`
)

type element struct {
	d *Driver
	h playwright.ElementHandle
}

var _ driver.Element = (*element)(nil)

func (e *element) run(ctx context.Context, op string, fn func() error) error {
	if _, err := e.d.active(); err != nil {
		return err
	}
	if err := e.d.do(ctx, fn); err != nil {
		return e.d.fail(ctx, op, err)
	}
	return nil
}

func (e *element) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	sel, err := selector(by)
	if err != nil {
		return nil, err
	}
	var handles []playwright.ElementHandle
	err = e.run(ctx, "find", func() error {
		var err error
		handles, err = e.h.QuerySelectorAll(sel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return e.d.wrap(handles), nil
}

// Click tries a trusted click first and falls back to a scripted one when
// playwright's actionability checks do not pass in time.
func (e *element) Click(ctx context.Context) error {
	return e.run(ctx, "click", func() error {
		err := e.h.Click(playwright.ElementHandleClickOptions{Timeout: timeoutMs(ctx, actionTimeout)})
		if err == nil || ctx.Err() != nil {
			return err
		}
		_, err = e.h.Evaluate(jsClick)
		return err
	})
}

func (e *element) Type(ctx context.Context, text string) error {
	return e.run(ctx, "type", func() error {
		parts := strings.Split(text, "\n")
		for i, part := range parts {
			if part != "" {
				if err := e.h.Type(part, playwright.ElementHandleTypeOptions{Timeout: timeoutMs(ctx, 0)}); err != nil {
					return err
				}
			}
			if i < len(parts)-1 {
				if err := e.h.Press("Enter", playwright.ElementHandlePressOptions{Timeout: timeoutMs(ctx, 0)}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (e *element) Clear(ctx context.Context) error {
	return e.run(ctx, "clear", func() error {
		return e.h.Fill("", playwright.ElementHandleFillOptions{Timeout: timeoutMs(ctx, actionTimeout)})
	})
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	var visible bool
	err := e.run(ctx, "visible", func() error {
		var err error
		visible, err = e.h.IsVisible()
		return err
	})
	return visible, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	var res interface{}
	err := e.run(ctx, "selected", func() error {
		var err error
		res, err = e.h.Evaluate(jsSelected)
		return err
	})
	if err != nil {
		return false, err
	}
	selected, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("selected: unexpected result %T", res)
	}
	return selected, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var res interface{}
	err := e.run(ctx, "attribute", func() error {
		var err error
		res, err = e.h.Evaluate(jsAttribute, name)
		return err
	})
	if err != nil {
		return "", err
	}
	value, _ := res.(string)
	return value, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.run(ctx, "text", func() error {
		var err error
		text, err = e.h.InnerText()
		return err
	})
	return strings.TrimSpace(text), err
}
