package pages_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/storewalk/internal/credential"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/driver/drivertest"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/pages"
	"github.com/xkilldash9x/storewalk/internal/pages/pagestest"
	"github.com/xkilldash9x/storewalk/internal/readiness"
)

func openShop(t *testing.T, opts pagestest.Options) (*pagestest.Shop, *pages.Home) {
	t.Helper()
	shop := pagestest.New(opts)
	home, err := pages.Open(context.Background(), shop.Toolkit(zaptest.NewLogger(t)), shop.StartURL())
	require.NoError(t, err)
	return shop, home
}

func toRegistration(t *testing.T, opts pagestest.Options) (*pagestest.Shop, *pages.Registration) {
	t.Helper()
	ctx := context.Background()
	shop, home := openShop(t, opts)
	login, err := home.GoToLogin(ctx)
	require.NoError(t, err)
	reg, err := login.GoToRegistration(ctx)
	require.NoError(t, err)
	return shop, reg
}

func toProduct(t *testing.T, opts pagestest.Options) (*pagestest.Shop, *pages.Product) {
	t.Helper()
	ctx := context.Background()
	shop, home := openShop(t, opts)
	search, err := home.Search(ctx, "notebook")
	require.NoError(t, err)
	product, err := search.SelectFirst(ctx)
	require.NoError(t, err)
	return shop, product
}

func generator(t *testing.T) *credential.Generator {
	return credential.NewGenerator("testuser", "test.com", zaptest.NewLogger(t))
}

func first(loc locator.Locator) driver.By { return loc.Candidates[0] }

func TestOpen(t *testing.T) {
	t.Run("enters the shop frame", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.Framed = true
		shop, home := openShop(t, opts)

		assert.Same(t, shop.Home, shop.Driver.Active())
		assert.True(t, home.Entry().Ready())
		assert.Equal(t, pages.PageHome, home.PageName())
		assert.Equal(t, []string{pagestest.TopURL}, shop.Driver.Visits())
	})

	t.Run("stays in the top document without a frame", func(t *testing.T) {
		shop, home := openShop(t, pagestest.Defaults())
		assert.Same(t, shop.Home, shop.Driver.Active())
		assert.True(t, home.Entry().Ready())
	})

	t.Run("navigation failure is a session failure", func(t *testing.T) {
		shop := pagestest.New(pagestest.Defaults())
		shop.Driver.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

		home, err := pages.Open(context.Background(), shop.Toolkit(zaptest.NewLogger(t)), shop.StartURL())
		assert.Nil(t, home)
		assert.True(t, driver.IsSessionFailure(err))
	})
}

func TestStateIsReturnedOnlyAfterReadinessWasEvaluated(t *testing.T) {
	shop := pagestest.New(pagestest.Defaults())
	shop.Home.Remove(first(shop.Catalog.MainContent))

	core, logs := observer.New(zapcore.DebugLevel)
	home, err := pages.Open(context.Background(), shop.Toolkit(zap.New(core)), shop.StartURL())
	require.NoError(t, err)
	require.NotNil(t, home)

	entry := home.Entry()
	assert.Equal(t, readiness.TimedOut, entry.Status)
	assert.Equal(t, []string{"content_present"}, entry.Failed)

	warned := logs.FilterMessage("Page readiness timed out; proceeding.").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warned, 1)
	assert.Equal(t, pages.PageHome, warned[0].ContextMap()["page"])
}

func TestConsumedStateRejectsActions(t *testing.T) {
	ctx := context.Background()
	_, home := openShop(t, pagestest.Defaults())

	_, err := home.GoToLogin(ctx)
	require.NoError(t, err)

	_, err = home.Search(ctx, "notebook")
	assert.ErrorIs(t, err, pages.ErrStateConsumed)
	_, err = home.GoToLogin(ctx)
	assert.ErrorIs(t, err, pages.ErrStateConsumed)
	_, err = home.IsUserLoggedIn(ctx)
	assert.ErrorIs(t, err, pages.ErrStateConsumed)
}

func TestFailedLookupDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	shop, home := openShop(t, pagestest.Defaults())
	shop.Home.Remove(first(shop.Catalog.SignInLink))

	_, err := home.GoToLogin(ctx)
	assert.True(t, locator.IsNotFound(err))

	_, err = home.Search(ctx, "notebook")
	assert.NoError(t, err)
}

func TestRegistration(t *testing.T) {
	ctx := context.Background()
	profile := pages.Profile{FirstName: "John", LastName: "Doe", Birthdate: "1990-05-31"}

	t.Run("strong secret is kept and the customer is signed in", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())

		report, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		assert.Equal(t, credential.Accepted, report.SecretOutcome)
		assert.False(t, report.EmailPrefilled)
		assert.Equal(t, report.Credential.Email, shop.Email.Value)
		assert.Equal(t, report.Credential.Secret, shop.Secret.Value)
		assert.NoError(t, credential.Validate(shop.Secret.Value))
		assert.True(t, shop.Privacy.Checked)
		assert.True(t, shop.Terms.Checked)

		steps := map[string]pages.StepStatus{}
		for _, o := range report.Optional {
			steps[o.Step] = o.Status
		}
		assert.Equal(t, map[string]pages.StepStatus{
			"social_title":   pages.StepDone,
			"birthdate":      pages.StepDone,
			"newsletter":     pages.StepDone,
			"partner_offers": pages.StepDone,
		}, steps)

		home, err := reg.Submit(ctx)
		require.NoError(t, err)
		loggedIn, err := home.IsUserLoggedIn(ctx)
		require.NoError(t, err)
		assert.True(t, loggedIn)
	})

	t.Run("weak rating swaps in one fallback", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.Strength = "Weak"
		shop, reg := toRegistration(t, opts)

		report, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		assert.Equal(t, credential.Replaced, report.SecretOutcome)
		assert.Contains(t, credential.Fallbacks(), shop.Secret.Value)
		assert.Equal(t, report.Credential.Secret, shop.Secret.Value)
		assert.Len(t, shop.Secret.Typed, 2)
	})

	t.Run("missing indicator leaves the secret unverified", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.Strength = ""
		shop, reg := toRegistration(t, opts)

		report, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		assert.Equal(t, credential.Unverified, report.SecretOutcome)
		assert.Len(t, shop.Secret.Typed, 1)
	})

	t.Run("prefilled email is kept", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())
		shop.Email.Value = "existing@shop.test"

		report, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		assert.True(t, report.EmailPrefilled)
		assert.Equal(t, "existing@shop.test", report.Credential.Email)
		assert.Empty(t, shop.Email.Typed)
	})

	t.Run("missing optional controls are skipped", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())
		shop.Registration.Remove(first(shop.Catalog.Newsletter))
		shop.Registration.Remove(first(shop.Catalog.Birthdate))

		report, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		for _, o := range report.Optional {
			switch o.Step {
			case "newsletter", "birthdate":
				assert.Equal(t, pages.StepSkipped, o.Status, o.Step)
			default:
				assert.Equal(t, pages.StepDone, o.Status, o.Step)
			}
		}
	})

	t.Run("missing required field is hard", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())
		shop.Registration.Remove(first(shop.Catalog.LastName))

		_, err := reg.Fill(ctx, profile, generator(t))
		assert.ErrorIs(t, err, driver.ErrNoSuchElement)
	})

	t.Run("unticked consent blocks submission", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())
		shop.Privacy.ClickErr = errors.New("element click intercepted")

		report, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		require.Len(t, report.Consents, 2)
		assert.Equal(t, pages.StepFailed, report.Consents[0].Status)
		assert.Equal(t, pages.StepDone, report.Consents[1].Status)

		_, err = reg.Submit(ctx)
		assert.ErrorIs(t, err, pages.ErrConsentRequired)
		assert.Zero(t, shop.Save.Clicks)
	})

	t.Run("absent consent controls do not block submission", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())
		shop.Registration.Remove(first(shop.Catalog.Terms))

		_, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		_, err = reg.Submit(ctx)
		assert.NoError(t, err)
	})

	t.Run("rejected save click falls back to the next candidate", func(t *testing.T) {
		shop, reg := toRegistration(t, pagestest.Defaults())
		shop.Save.ClickErr = errors.New("element not interactable")
		alt := drivertest.El("Save")
		alt.OnClick = func(d *drivertest.Driver) error {
			d.Goto(pagestest.HomeURL)
			return nil
		}
		shop.Registration.Add(shop.Catalog.SaveButton.Candidates[1], alt)

		_, err := reg.Fill(ctx, profile, generator(t))
		require.NoError(t, err)
		_, err = reg.Submit(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, alt.Clicks)
		assert.Same(t, shop.Home, shop.Driver.Active())
	})
}

func TestLoginSignIn(t *testing.T) {
	ctx := context.Background()
	shop, home := openShop(t, pagestest.Defaults())
	login, err := home.GoToLogin(ctx)
	require.NoError(t, err)

	home, err = login.SignIn(ctx, "testuser_0123456789abcdef@test.com", "StrongPass123!")
	require.NoError(t, err)
	loggedIn, err := home.IsUserLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)
	assert.Same(t, shop.Home, shop.Driver.Active())

	_, err = login.SignIn(ctx, "a@b.c", "x")
	assert.ErrorIs(t, err, pages.ErrStateConsumed)
}

func TestLoginWaitsForDocumentComplete(t *testing.T) {
	shop, home := openShop(t, pagestest.Defaults())
	shop.Login.ReadyState = "interactive"

	login, err := home.GoToLogin(context.Background())
	require.NoError(t, err)
	entry := login.Entry()
	assert.False(t, entry.Ready())
	assert.Equal(t, []string{"document_complete"}, entry.Failed)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("counts results and opens the first card", func(t *testing.T) {
		shop, home := openShop(t, pagestest.Defaults())
		search, err := home.Search(ctx, "notebook")
		require.NoError(t, err)
		assert.Equal(t, "notebook", shop.SearchBox.Value)

		n, err := search.ResultCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		name, err := search.FirstProductName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hummingbird notebook", name)

		product, err := search.SelectFirst(ctx)
		require.NoError(t, err)
		assert.Equal(t, pages.PageProduct, product.PageName())
		assert.Same(t, shop.Product, shop.Driver.Active())
	})

	t.Run("falls back to product titles", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.NoFirstCard = true
		shop, home := openShop(t, opts)
		search, err := home.Search(ctx, "notebook")
		require.NoError(t, err)

		_, err = search.SelectFirst(ctx)
		require.NoError(t, err)
		assert.Same(t, shop.Product, shop.Driver.Active())
	})

	t.Run("no results is hard", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.Results = 0
		_, home := openShop(t, opts)
		search, err := home.Search(ctx, "notebook")
		require.NoError(t, err)
		assert.False(t, search.Entry().Ready())

		n, err := search.ResultCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		_, err = search.SelectFirst(ctx)
		assert.ErrorIs(t, err, driver.ErrNoSuchElement)
	})
}

func TestProductHasImage(t *testing.T) {
	ctx := context.Background()
	image := func(src string, hidden bool) func(s *pagestest.Shop) {
		return func(s *pagestest.Shop) {
			img := drivertest.El("").Attr("src", src)
			img.Hidden = hidden
			s.Product.Set(first(s.Catalog.ProductImage), img)
		}
	}

	tests := []struct {
		name   string
		mutate func(s *pagestest.Shop)
		want   bool
	}{
		{"displayed image with source", func(*pagestest.Shop) {}, true},
		{"no image", func(s *pagestest.Shop) { s.Product.Remove(first(s.Catalog.ProductImage)) }, false},
		{"hidden image", image("https://x/img.png", true), false},
		{"empty source", image("", false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shop, product := toProduct(t, pagestest.Defaults())
			tt.mutate(shop)
			ok, err := product.HasImage(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

// slowDriver makes every lookup take longer than a round of the wait loop,
// the way a remote browser does.
type slowDriver struct {
	driver.Driver
	delay time.Duration
}

func (s slowDriver) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	time.Sleep(s.delay)
	return s.Driver.FindAll(ctx, by)
}

func TestElementWaitsWithSlowLookups(t *testing.T) {
	ctx := context.Background()
	slowProduct := func(t *testing.T) (*pagestest.Shop, *pages.Product) {
		t.Helper()
		shop := pagestest.New(pagestest.Defaults())
		tk := shop.Toolkit(zaptest.NewLogger(t))
		home, err := pages.Open(ctx, tk, shop.StartURL())
		require.NoError(t, err)
		search, err := home.Search(ctx, "notebook")
		require.NoError(t, err)
		product, err := search.SelectFirst(ctx)
		require.NoError(t, err)

		// Two candidates at 30ms each outlive the 40ms element wait.
		tk.Driver = slowDriver{Driver: shop.Driver, delay: 30 * time.Millisecond}
		tk.Timings.ElementTimeout = 40 * time.Millisecond
		return shop, product
	}

	t.Run("missing image is a failed check", func(t *testing.T) {
		shop, product := slowProduct(t)
		shop.Product.Remove(first(shop.Catalog.ProductImage))

		ok, err := product.HasImage(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing control is not found", func(t *testing.T) {
		shop, product := slowProduct(t)
		shop.Product.Remove(first(shop.Catalog.AddToCart))

		_, err := product.AddToCart(ctx)
		require.Error(t, err)
		assert.True(t, locator.IsNotFound(err), "got %v", err)
		assert.False(t, driver.IsSessionFailure(err))
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestProductAddToCart(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmation shown", func(t *testing.T) {
		shop, product := toProduct(t, pagestest.Defaults())
		name, err := product.Name(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hummingbird notebook", name)

		shown, err := product.AddToCart(ctx)
		require.NoError(t, err)
		assert.True(t, shown)
		assert.Equal(t, 1, shop.AddButton.Clicks)
	})

	t.Run("missing confirmation is soft", func(t *testing.T) {
		shop, product := toProduct(t, pagestest.Defaults())
		shop.AddButton.OnClick = nil

		shown, err := product.AddToCart(ctx)
		require.NoError(t, err)
		assert.False(t, shown)
	})

	t.Run("missing control is hard", func(t *testing.T) {
		shop, product := toProduct(t, pagestest.Defaults())
		shop.Product.Remove(first(shop.Catalog.AddToCart))

		_, err := product.AddToCart(ctx)
		assert.True(t, locator.IsNotFound(err))
	})
}

func TestProceedToCart(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		modalCheckout bool
		headerCart    bool
		wantTier      pages.CartTier
		wantFailed    []pages.CartTier
	}{
		{"modal checkout", true, true, pages.TierModal, nil},
		{"header cart", false, true, pages.TierHeader, []pages.CartTier{pages.TierModal}},
		{"direct address", false, false, pages.TierDirect, []pages.CartTier{pages.TierModal, pages.TierHeader}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := pagestest.Defaults()
			opts.ModalCheckout = tt.modalCheckout
			opts.HeaderCart = tt.headerCart
			shop, product := toProduct(t, opts)

			_, err := product.AddToCart(ctx)
			require.NoError(t, err)
			cart, route, err := product.ProceedToCart(ctx)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTier, route.Tier)
			var failed []pages.CartTier
			for _, f := range route.Failures {
				failed = append(failed, f.Tier)
			}
			assert.Equal(t, tt.wantFailed, failed)
			assert.Same(t, shop.Cart, shop.Driver.Active())

			in, err := cart.IsProductInCart(ctx)
			require.NoError(t, err)
			assert.True(t, in)
			n, err := cart.ItemCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}

	t.Run("direct tier rewrites the product address", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.ModalCheckout, opts.HeaderCart = false, false
		_, product := toProduct(t, opts)

		_, route, err := product.ProceedToCart(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://shop.test/index.php?action=show&controller=cart", route.URL)
	})

	t.Run("direct tier failure is a session failure", func(t *testing.T) {
		opts := pagestest.Defaults()
		opts.ModalCheckout, opts.HeaderCart = false, false
		shop, product := toProduct(t, opts)
		shop.Driver.NavigateErr = errors.New("net::ERR_CONNECTION_RESET")

		cart, route, err := product.ProceedToCart(ctx)
		assert.Nil(t, cart)
		assert.True(t, driver.IsSessionFailure(err))
		assert.Len(t, route.Failures, 3)
	})

	t.Run("consumed after firing", func(t *testing.T) {
		_, product := toProduct(t, pagestest.Defaults())
		_, _, err := product.ProceedToCart(ctx)
		require.NoError(t, err)

		_, err = product.AddToCart(ctx)
		assert.ErrorIs(t, err, pages.ErrStateConsumed)
	})
}

func TestCartQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("filled cart", func(t *testing.T) {
		_, product := toProduct(t, pagestest.Defaults())
		_, err := product.AddToCart(ctx)
		require.NoError(t, err)
		cart, _, err := product.ProceedToCart(ctx)
		require.NoError(t, err)
		assert.True(t, cart.Entry().Ready())

		name, err := cart.FirstProductName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hummingbird notebook", name)
		empty, err := cart.IsEmpty(ctx)
		require.NoError(t, err)
		assert.False(t, empty)
		subtotal, err := cart.Subtotal(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 29.0, subtotal, 1e-9)
	})

	t.Run("empty cart", func(t *testing.T) {
		_, product := toProduct(t, pagestest.Defaults())
		cart, route, err := product.ProceedToCart(ctx)
		require.NoError(t, err)
		assert.Equal(t, pages.TierHeader, route.Tier)
		assert.True(t, cart.Entry().Ready())

		empty, err := cart.IsEmpty(ctx)
		require.NoError(t, err)
		assert.True(t, empty)
		in, err := cart.IsProductInCart(ctx)
		require.NoError(t, err)
		assert.False(t, in)
	})
}

func TestCartURL(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    string
	}{
		{"product controller query", "https://demo.shop/index.php?controller=product&id_product=7&id_lang=1#top",
			"https://demo.shop/index.php?action=show&controller=cart&id_lang=1"},
		{"product path segment", "https://demo.shop/en/product/7-notebook?q=1", "https://demo.shop/en/cart/7-notebook"},
		{"no product marker", "https://demo.shop/en/7-hummingbird-notebook.html", "https://demo.shop/index.php?controller=cart&action=show"},
		{"segment match only", "https://demo.shop/products/7", "https://demo.shop/index.php?controller=cart&action=show"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pages.CartURL(tt.current, "/index.php?controller=cart&action=show")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := pages.CartURL("/relative/product", "cart")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$29.00", 29.0},
		{"29,00 €", 29.0},
		{"€1.234,56", 1234.56},
		{"$1,234.56", 1234.56},
		{"1 234,5 zł", 1234.5},
		{"1,234", 1234},
		{"Subtotal: $35.", 35},
		{"$.50", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := pages.ParseAmount(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := pages.ParseAmount("Free")
	assert.ErrorIs(t, err, pages.ErrNoAmount)
}

func TestDefaultCatalogIsValid(t *testing.T) {
	c := pages.DefaultCatalog()
	require.NoError(t, c.Validate())

	c.HeaderCart = locator.Locator{Name: "header_cart"}
	assert.ErrorContains(t, c.Validate(), "HeaderCart")
}
