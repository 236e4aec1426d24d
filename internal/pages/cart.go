package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/driver"
)

// Cart is the shopping cart summary.
type Cart struct {
	lifecycle
	tk *Toolkit
}

func newCart(ctx context.Context, tk *Toolkit) *Cart {
	c := tk.Catalog
	content := tk.predicates.AnyPresent("cart_content_present", tk.Timings.ContentTimeout, c.CartItems, c.EmptyCart)
	return &Cart{lifecycle: tk.enter(ctx, tk.shopSpec(PageCart, content)), tk: tk}
}

// ItemCount returns the number of cart lines.
func (c *Cart) ItemCount(ctx context.Context) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.tk.Resolver.Count(ctx, c.tk.Driver, c.tk.Catalog.CartItems)
}

// IsProductInCart reports whether the cart has at least one line. The names
// of the lines are logged.
func (c *Cart) IsProductInCart(ctx context.Context) (bool, error) {
	n, err := c.ItemCount(ctx)
	if err != nil || n == 0 {
		return false, err
	}
	names, _, err := c.tk.Resolver.ResolveAll(ctx, c.tk.Driver, c.tk.Catalog.CartProductNames)
	if err == nil {
		for _, el := range names {
			if text, err := el.Text(ctx); err == nil {
				c.logger.Debug("Product in cart.", zap.String("name", text))
			}
		}
	}
	return true, nil
}

// FirstProductName returns the name of the first cart line, or "".
func (c *Cart) FirstProductName(ctx context.Context) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	return firstText(ctx, c.tk, c.tk.Catalog.CartProductNames)
}

// IsEmpty reports whether the empty cart notice is displayed.
func (c *Cart) IsEmpty(ctx context.Context) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	_, _, err := c.tk.Resolver.ResolveDisplayed(ctx, c.tk.Driver, c.tk.Catalog.EmptyCart)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, driver.ErrNoSuchElement) {
		return false, nil
	}
	return false, err
}

// Subtotal parses the displayed cart subtotal.
func (c *Cart) Subtotal(ctx context.Context) (float64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	el, _, err := c.tk.Resolver.Resolve(ctx, c.tk.Driver, c.tk.Catalog.CartSubtotal)
	if err != nil {
		return 0, err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return 0, err
	}
	return ParseAmount(text)
}

// ErrNoAmount is returned by ParseAmount when the text holds no digits.
var ErrNoAmount = errors.New("no amount in text")

// ParseAmount extracts a price from display text such as "$29.00",
// "29,00 €" or "1.234,56". Everything but digits and separators is dropped.
// The last separator is the decimal mark when one or two digits follow it;
// every other separator groups thousands.
func ParseAmount(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	s := strings.TrimRight(b.String(), ".,")
	if s == "" {
		return 0, fmt.Errorf("%w: %q", ErrNoAmount, text)
	}

	intPart, frac := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		if tail := s[i+1:]; len(tail) == 1 || len(tail) == 2 {
			intPart, frac = s[:i], tail
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	normalized := intPart
	if frac != "" {
		normalized += "." + frac
	}
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", text, err)
	}
	return v, nil
}
