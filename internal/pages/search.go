package pages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

// Search is the result listing of a catalog query.
type Search struct {
	lifecycle
	tk *Toolkit
}

func newSearch(ctx context.Context, tk *Toolkit) *Search {
	results := tk.predicates.Present("results_present", tk.Catalog.SearchResults, tk.Timings.ContentTimeout)
	return &Search{lifecycle: tk.enter(ctx, tk.shopSpec(PageSearch, results)), tk: tk}
}

// ResultCount returns the number of product cards on the page.
func (s *Search) ResultCount(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.tk.Resolver.Count(ctx, s.tk.Driver, s.tk.Catalog.SearchResults)
}

// FirstProductName returns the title of the first result, or "" when there
// is none.
func (s *Search) FirstProductName(ctx context.Context) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	return firstText(ctx, s.tk, s.tk.Catalog.ProductTitles)
}

// SelectFirst opens the first result. The first card's link is preferred;
// the product title links are the fallback. Only when both are missing is
// the error returned.
func (s *Search) SelectFirst(ctx context.Context) (*Product, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	c := s.tk.Catalog

	card, err := s.tk.find(ctx, c.FirstProduct)
	if err == nil {
		s.consume()
		err = s.tk.click(ctx, card)
		if err == nil {
			return newProduct(ctx, s.tk), nil
		}
		if driver.IsSessionFailure(err) || ctx.Err() != nil {
			return nil, err
		}
		s.logger.Info("First card click failed; using product titles.", zap.Error(err))
	} else if !locator.IsNotFound(err) {
		return nil, err
	} else {
		s.logger.Info("First card not found; using product titles.",
			observability.Locator(c.FirstProduct.Name))
	}

	titles, _, err := s.tk.Resolver.ResolveAll(ctx, s.tk.Driver, c.ProductTitles)
	if err != nil {
		if locator.IsNotFound(err) {
			return nil, fmt.Errorf("no products in search results: %w", err)
		}
		return nil, err
	}
	s.consume()
	if err := s.tk.click(ctx, titles[0]); err != nil {
		return nil, fmt.Errorf("open first product: %w", err)
	}
	return newProduct(ctx, s.tk), nil
}

// firstText returns the text of the first element matched by loc.
func firstText(ctx context.Context, tk *Toolkit, loc locator.Locator) (string, error) {
	el, _, err := tk.Resolver.Resolve(ctx, tk.Driver, loc)
	if locator.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}
