package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/storewalk/internal/driver"
)

// element addresses the idx-th node of a registered search result.
type element struct {
	d   *Driver
	key string
	idx int
}

var _ driver.Element = (*element)(nil)

func (e *element) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	return e.d.find(ctx, by, e)
}

func (e *element) Click(ctx context.Context) error {
	_, err := e.d.call(ctx, clickBody, e)
	return err
}

// Type focuses the element and inserts text through the input domain so the
// page sees trusted events. A newline presses Enter.
func (e *element) Type(ctx context.Context, text string) error {
	if _, err := e.d.call(ctx, focusBody, e); err != nil {
		return err
	}
	parts := strings.Split(text, "\n")
	for i, part := range parts {
		if part != "" {
			if err := e.d.runActions(ctx, input.InsertText(part)); err != nil {
				return e.d.fail(ctx, "insert text", err)
			}
			if _, err := e.d.call(ctx, keyupBody, e); err != nil {
				return err
			}
		}
		if i < len(parts)-1 {
			if err := e.d.runActions(ctx, chromedp.KeyEvent(kb.Enter)); err != nil {
				return e.d.fail(ctx, "press enter", err)
			}
		}
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	_, err := e.d.call(ctx, clearBody, e)
	return err
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	return e.boolCall(ctx, displayedBody)
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	return e.boolCall(ctx, selectedBody)
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	return e.stringCall(ctx, attributeBody, name)
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.stringCall(ctx, textBody)
}

func (e *element) boolCall(ctx context.Context, body string) (bool, error) {
	raw, err := e.d.call(ctx, body, e)
	if err != nil {
		return false, err
	}
	var v bool
	if err := jsonAPI.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("decode boolean result: %w", err)
	}
	return v, nil
}

func (e *element) stringCall(ctx context.Context, body string, extra ...any) (string, error) {
	raw, err := e.d.call(ctx, body, append([]any{e}, extra...)...)
	if err != nil {
		return "", err
	}
	var v string
	if err := jsonAPI.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode string result: %w", err)
	}
	return v, nil
}
