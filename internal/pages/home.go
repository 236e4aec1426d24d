package pages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
)

// Page names, used as readiness spec names and log fields.
const (
	PageHome         = "home"
	PageLogin        = "login"
	PageRegistration = "registration"
	PageSearch       = "search"
	PageProduct      = "product"
	PageCart         = "cart"
)

// Home is the storefront landing page, signed in or not.
type Home struct {
	lifecycle
	tk *Toolkit
}

// Open navigates to url, enters the shop iframe when the storefront is
// embedded in one and returns the home state. Only a failed navigation is an
// error; a missing frame or a page that never settles is logged.
func Open(ctx context.Context, tk *Toolkit, url string) (*Home, error) {
	if err := tk.Driver.Navigate(ctx, url); err != nil {
		return nil, driver.WrapSession("navigate", err)
	}
	if err := enterShopFrame(ctx, tk); err != nil {
		return nil, err
	}
	return newHome(ctx, tk), nil
}

func enterShopFrame(ctx context.Context, tk *Toolkit) error {
	_, _, err := tk.waitFor(ctx, tk.Driver, tk.Catalog.ShopFrame, tk.Timings.FrameTimeout, false)
	switch {
	case err == nil:
	case locator.IsNotFound(err):
		tk.Logger.Info("No shop frame found; staying in the top document.")
		return nil
	case driver.IsSessionFailure(err) || ctx.Err() != nil:
		return err
	default:
		tk.Logger.Warn("Shop frame wait failed; staying in the top document.", zap.Error(err))
		return nil
	}

	if err := tk.Driver.SwitchToFrame(ctx, 0); err != nil {
		if driver.IsSessionFailure(err) || ctx.Err() != nil {
			return err
		}
		tk.Logger.Warn("Could not enter shop frame.", zap.Error(err))
		return nil
	}
	tk.Logger.Debug("Entered shop frame.")
	return nil
}

func newHome(ctx context.Context, tk *Toolkit) *Home {
	return &Home{lifecycle: tk.enter(ctx, tk.shopSpec(PageHome)), tk: tk}
}

// GoToLogin follows the sign-in link.
func (h *Home) GoToLogin(ctx context.Context) (*Login, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	link, _, err := h.tk.waitFor(ctx, h.tk.Driver, h.tk.Catalog.SignInLink, h.tk.Timings.ElementTimeout, false)
	if err != nil {
		return nil, err
	}
	h.consume()
	if err := h.tk.click(ctx, link); err != nil {
		return nil, fmt.Errorf("open sign-in: %w", err)
	}
	return newLogin(ctx, h.tk), nil
}

// Search submits query through the header search box.
func (h *Home) Search(ctx context.Context, query string) (*Search, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	box, _, err := h.tk.waitFor(ctx, h.tk.Driver, h.tk.Catalog.SearchInput, h.tk.Timings.ElementTimeout, false)
	if err != nil {
		return nil, err
	}
	if err := box.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear search box: %w", err)
	}
	h.consume()
	h.logger.Info("Searching catalog.", zap.String("query", query))
	if err := box.Type(ctx, query+"\n"); err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}
	return newSearch(ctx, h.tk), nil
}

// IsUserLoggedIn reports whether the account widget of a signed-in customer
// is displayed.
func (h *Home) IsUserLoggedIn(ctx context.Context) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	_, _, err := h.tk.Resolver.ResolveDisplayed(ctx, h.tk.Driver, h.tk.Catalog.UserAccount)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, driver.ErrNoSuchElement) {
		return false, nil
	}
	return false, err
}
