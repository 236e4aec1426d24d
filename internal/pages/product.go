package pages

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

// Product is a product detail page.
type Product struct {
	lifecycle
	tk *Toolkit
}

func newProduct(ctx context.Context, tk *Toolkit) *Product {
	return &Product{lifecycle: tk.enter(ctx, tk.shopSpec(PageProduct)), tk: tk}
}

// Name returns the product heading, or "" when the page has none.
func (p *Product) Name(ctx context.Context) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	return firstText(ctx, p.tk, p.tk.Catalog.ProductName)
}

// HasImage reports whether the product cover image is displayed and has a
// non-empty source.
func (p *Product) HasImage(ctx context.Context) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	img, _, err := p.tk.waitFor(ctx, p.tk.Driver, p.tk.Catalog.ProductImage, p.tk.Timings.ElementTimeout, false)
	if locator.IsNotFound(err) {
		p.logger.Info("Product image not found.")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	displayed, err := img.IsDisplayed(ctx)
	if err != nil {
		return false, err
	}
	src, err := img.Attribute(ctx, "src")
	if err != nil {
		return false, err
	}
	p.logger.Debug("Product image.", zap.Bool("displayed", displayed), zap.String("src", src))
	return displayed && strings.TrimSpace(src) != "", nil
}

// AddToCart clicks the add-to-cart control and waits for the confirmation
// modal. The control is required; the modal is not, and whether it showed up
// is returned.
func (p *Product) AddToCart(ctx context.Context) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	t := p.tk.Timings
	button, _, err := p.tk.waitFor(ctx, p.tk.Driver, p.tk.Catalog.AddToCart, t.ElementTimeout, true)
	if err != nil {
		return false, err
	}
	if err := p.tk.click(ctx, button); err != nil {
		return false, fmt.Errorf("add to cart: %w", err)
	}

	_, _, err = p.tk.waitFor(ctx, p.tk.Driver, p.tk.Catalog.CartModal, t.ModalTimeout, true)
	switch {
	case err == nil:
		p.logger.Info("Cart confirmation shown.")
		return true, nil
	case driver.IsSessionFailure(err) || ctx.Err() != nil:
		return false, err
	default:
		p.logger.Warn("Cart confirmation did not appear; continuing.", zap.Error(err))
		return false, nil
	}
}

// CartTier names a way of reaching the cart from a product page.
type CartTier string

const (
	TierModal  CartTier = "modal_checkout"
	TierHeader CartTier = "header_cart"
	TierDirect CartTier = "direct_url"
)

// TierFailure records why a tier did not reach the cart.
type TierFailure struct {
	Tier CartTier
	Err  error
}

// CartRoute records how the cart was reached.
type CartRoute struct {
	Tier     CartTier
	Failures []TierFailure
	// URL is the address navigated to by the direct tier.
	URL string
}

// ProceedToCart reaches the cart through the first tier that works: the
// checkout button of the confirmation modal, the header cart link after
// dismissing the modal, and finally direct navigation to the cart address.
// Only a failure of the last tier is returned as an error.
func (p *Product) ProceedToCart(ctx context.Context) (*Cart, CartRoute, error) {
	var route CartRoute
	if err := p.check(); err != nil {
		return nil, route, err
	}
	p.consume()

	soft := []struct {
		tier CartTier
		run  func(context.Context) error
	}{
		{TierModal, p.viaModal},
		{TierHeader, p.viaHeader},
	}
	for _, t := range soft {
		err := t.run(ctx)
		if err == nil {
			return p.arrive(ctx, route, t.tier)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, route, ctxErr
		}
		route.Failures = append(route.Failures, TierFailure{Tier: t.tier, Err: err})
		if driver.IsSessionFailure(err) {
			return nil, route, err
		}
		p.logger.Warn("Cart tier failed; trying next.",
			observability.Step("proceed_to_cart"),
			zap.String("tier", string(t.tier)),
			zap.Error(err),
		)
	}

	if err := p.viaURL(ctx, &route); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, route, ctxErr
		}
		route.Failures = append(route.Failures, TierFailure{Tier: TierDirect, Err: err})
		return nil, route, driver.WrapSession("proceed to cart", err)
	}
	return p.arrive(ctx, route, TierDirect)
}

func (p *Product) arrive(ctx context.Context, route CartRoute, tier CartTier) (*Cart, CartRoute, error) {
	route.Tier = tier
	p.logger.Info("Reached cart.", zap.String("tier", string(tier)), zap.Int("failed_tiers", len(route.Failures)))
	return newCart(ctx, p.tk), route, nil
}

func (p *Product) viaModal(ctx context.Context) error {
	c := p.tk.Catalog
	modal, _, err := p.tk.Resolver.ResolveDisplayed(ctx, p.tk.Driver, c.CartModal)
	if err != nil {
		return err
	}
	proceed, _, err := p.tk.waitFor(ctx, modal, c.ProceedToCheckout, p.tk.Timings.ModalTimeout, true)
	if err != nil {
		return err
	}
	return p.tk.click(ctx, proceed)
}

func (p *Product) viaHeader(ctx context.Context) error {
	c := p.tk.Catalog
	modal, _, err := p.tk.Resolver.ResolveDisplayed(ctx, p.tk.Driver, c.CartModal)
	switch {
	case err == nil:
		dismiss, _, err := p.tk.Resolver.ResolveDisplayed(ctx, modal, c.ContinueShopping)
		if err != nil {
			return fmt.Errorf("dismiss confirmation: %w", err)
		}
		if err := p.tk.click(ctx, dismiss); err != nil {
			return fmt.Errorf("dismiss confirmation: %w", err)
		}
	case !locator.IsNotFound(err):
		return err
	}

	cart, _, err := p.tk.waitFor(ctx, p.tk.Driver, c.HeaderCart, p.tk.Timings.ElementTimeout, true)
	if err != nil {
		return err
	}
	return p.tk.click(ctx, cart)
}

func (p *Product) viaURL(ctx context.Context, route *CartRoute) error {
	current, err := p.tk.Driver.CurrentURL(ctx)
	if err != nil {
		return err
	}
	target, err := CartURL(current, p.tk.Catalog.CartPath)
	if err != nil {
		return err
	}
	route.URL = target
	p.logger.Info("Navigating to cart directly.", zap.String("url", target))
	return p.tk.Driver.Navigate(ctx, target)
}

// CartURL derives the cart address from the address of a product page. A
// controller=product query becomes controller=cart&action=show, otherwise a
// "product" path segment becomes "cart", and failing both cartPath is joined
// to the shop root.
func CartURL(current, cartPath string) (string, error) {
	u, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse current address: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("current address %q is not absolute", current)
	}

	q := u.Query()
	if q.Get("controller") == "product" {
		for _, k := range []string{"id_product", "id_product_attribute", "rewrite"} {
			q.Del(k)
		}
		q.Set("controller", "cart")
		q.Set("action", "show")
		u.RawQuery = q.Encode()
		u.Fragment = ""
		return u.String(), nil
	}

	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		if seg == "product" {
			segments[i] = "cart"
			u.Path = strings.Join(segments, "/")
			u.RawPath = ""
			u.RawQuery = ""
			u.Fragment = ""
			return u.String(), nil
		}
	}

	return u.Scheme + "://" + u.Host + "/" + strings.TrimPrefix(cartPath, "/"), nil
}
