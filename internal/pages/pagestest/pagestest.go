// Package pagestest builds a scripted PrestaShop storefront on top of the
// in-memory driver. Every page carries the affordances of the default
// catalog, and links, forms and the cart confirmation behave like the classic
// theme.
package pagestest

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/driver/drivertest"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/pages"
)

// Storefront addresses.
const (
	TopURL          = "https://shop.test/"
	HomeURL         = "https://shop.test/index.php"
	LoginURL        = "https://shop.test/index.php?controller=authentication"
	RegistrationURL = "https://shop.test/index.php?controller=registration"
	SearchURL       = "https://shop.test/index.php?controller=search"
	ProductURL      = "https://shop.test/index.php?controller=product&id_product=1"
	CartURL         = "https://shop.test/index.php?controller=cart&action=show"
)

// Options shape the storefront.
type Options struct {
	// Results is the number of search hits. Zero means no hits.
	Results int
	// ImageSrc is the product cover source. Empty renders no image.
	ImageSrc string
	// Strength is the text of the password strength indicator. Empty
	// renders no indicator.
	Strength string
	// Framed embeds the shop in an iframe of TopURL, like the public demo.
	Framed bool
	// ModalCheckout puts a working checkout button in the cart confirmation.
	ModalCheckout bool
	// HeaderCart renders the header cart link on the product page.
	HeaderCart bool
	// NoFirstCard drops the first-card link so search falls back to titles.
	NoFirstCard bool
}

// Defaults is a storefront where every step succeeds on its first tier.
func Defaults() Options {
	return Options{
		Results:       3,
		ImageSrc:      "https://x/img.png",
		Strength:      "Strong",
		ModalCheckout: true,
		HeaderCart:    true,
	}
}

// Shop is a scripted storefront and the handles tests assert on.
type Shop struct {
	Driver  *drivertest.Driver
	Catalog pages.Catalog

	Top, Home, Login, Registration, Search, Product, Cart *drivertest.Page

	SearchBox *drivertest.Element
	Email     *drivertest.Element
	Secret    *drivertest.Element
	Strength  *drivertest.Element
	Privacy   *drivertest.Element
	Terms     *drivertest.Element
	Save      *drivertest.Element
	AddButton *drivertest.Element
	Modal     *drivertest.Element
}

// at returns the first candidate of loc, which is how the fake indexes
// elements.
func at(loc locator.Locator) driver.By { return loc.Candidates[0] }

// New builds the storefront described by opts.
func New(opts Options) *Shop {
	s := &Shop{Catalog: pages.DefaultCatalog()}
	c := s.Catalog

	s.Home = shopPage(c, HomeURL)
	s.Login = shopPage(c, LoginURL)
	s.Registration = shopPage(c, RegistrationURL)
	s.Search = shopPage(c, SearchURL)
	s.Product = shopPage(c, ProductURL)
	s.Cart = shopPage(c, CartURL)

	all := []*drivertest.Page{s.Home, s.Login, s.Registration, s.Search, s.Product, s.Cart}
	if opts.Framed {
		s.Top = drivertest.NewPage(TopURL)
		s.Top.Frames = []*drivertest.Page{s.Home}
		s.Top.Add(at(c.ShopFrame), drivertest.El(""))
		all = append(all, s.Top)
	}
	s.Driver = drivertest.New(all...)

	s.buildHome()
	s.buildLogin()
	s.buildRegistration(opts)
	s.buildSearch(opts)
	s.buildProduct(opts)
	s.Cart.Add(at(c.EmptyCart), drivertest.El("There are no more items in your cart"))
	s.Cart.Add(at(c.CartSubtotal), drivertest.El("$0.00"))
	return s
}

// StartURL is the address a journey should open.
func (s *Shop) StartURL() string {
	if s.Top != nil {
		return TopURL
	}
	return HomeURL
}

// Toolkit returns a toolkit over the shop with Fast timings.
func (s *Shop) Toolkit(logger *zap.Logger) *pages.Toolkit {
	return pages.NewToolkit(s.Driver, s.Catalog, Fast(), logger)
}

// Fast returns timings short enough for unit tests.
func Fast() pages.Timings {
	return pages.Timings{
		Ceiling:          2 * time.Second,
		PredicateTimeout: 150 * time.Millisecond,
		ContentTimeout:   150 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		Settle:           time.Millisecond,
		ElementTimeout:   100 * time.Millisecond,
		ModalTimeout:     50 * time.Millisecond,
		StrengthTimeout:  50 * time.Millisecond,
		FrameTimeout:     100 * time.Millisecond,
	}
}

// shopPage returns a loaded page with content and a clickable link.
func shopPage(c pages.Catalog, url string) *drivertest.Page {
	return drivertest.NewPage(url).
		Add(at(c.MainContent), drivertest.El("")).
		Add(at(c.Interactive), drivertest.El("link"))
}

func goTo(url string) func(d *drivertest.Driver) error {
	return func(d *drivertest.Driver) error {
		d.Goto(url)
		return nil
	}
}

// signIn shows the customer account widget on the home page and returns there.
func (s *Shop) signIn(d *drivertest.Driver) error {
	d.Do(func() {
		s.Home.Set(at(s.Catalog.UserAccount), drivertest.El("John Doe"))
	})
	d.Goto(HomeURL)
	return nil
}

func (s *Shop) buildHome() {
	c := s.Catalog
	link := drivertest.El("Sign in")
	link.OnClick = goTo(LoginURL)
	s.Home.Add(at(c.SignInLink), link)

	s.SearchBox = drivertest.El("")
	s.SearchBox.OnEnter = func(d *drivertest.Driver, _ string) error {
		d.Goto(SearchURL)
		return nil
	}
	s.Home.Add(at(c.SearchInput), s.SearchBox)
}

func (s *Shop) buildLogin() {
	c := s.Catalog
	create := drivertest.El("Create one here")
	create.OnClick = goTo(RegistrationURL)
	s.Login.Add(at(c.CreateAccountLink), create)

	s.Login.Add(at(c.LoginEmail), drivertest.El(""))
	s.Login.Add(at(c.LoginSecret), drivertest.El(""))
	submit := drivertest.El("Sign in")
	submit.OnClick = s.signIn
	s.Login.Add(at(c.SignInButton), submit)
}

func (s *Shop) buildRegistration(opts Options) {
	c := s.Catalog
	p := s.Registration
	p.Add(at(c.SocialTitle), drivertest.Checkbox())
	p.Add(at(c.FirstName), drivertest.El(""))
	p.Add(at(c.LastName), drivertest.El(""))

	s.Email = drivertest.El("")
	s.Secret = drivertest.El("")
	p.Add(at(c.Email), s.Email)
	p.Add(at(c.Secret), s.Secret)
	if opts.Strength != "" {
		s.Strength = drivertest.El(opts.Strength)
		p.Add(at(c.SecretStrength), s.Strength)
	}
	p.Add(at(c.Birthdate), drivertest.El(""))

	s.Privacy = drivertest.Checkbox()
	s.Terms = drivertest.Checkbox()
	p.Add(at(c.CustomerPrivacy), s.Privacy)
	p.Add(at(c.Terms), s.Terms)
	p.Add(at(c.Newsletter), drivertest.Checkbox())
	p.Add(at(c.PartnerOffers), drivertest.Checkbox())

	s.Save = drivertest.El("Save")
	s.Save.OnClick = s.signIn
	p.Add(at(c.SaveButton), s.Save)
}

func (s *Shop) buildSearch(opts Options) {
	c := s.Catalog
	for i := 0; i < opts.Results; i++ {
		s.Search.Add(at(c.SearchResults), drivertest.El(""))
		title := drivertest.El(productName(i))
		title.OnClick = goTo(ProductURL)
		s.Search.Add(at(c.ProductTitles), title)
	}
	if opts.Results > 0 && !opts.NoFirstCard {
		card := drivertest.El(productName(0))
		card.OnClick = goTo(ProductURL)
		s.Search.Add(at(c.FirstProduct), card)
	}
}

func productName(i int) string {
	return []string{"Hummingbird notebook", "Mountain fox notebook", "Brown bear notebook"}[i%3]
}

func (s *Shop) buildProduct(opts Options) {
	c := s.Catalog
	p := s.Product
	p.Add(at(c.ProductName), drivertest.El(productName(0)))
	if opts.ImageSrc != "" {
		p.Add(at(c.ProductImage), drivertest.El("").Attr("src", opts.ImageSrc))
	}

	s.Modal = drivertest.El("Product successfully added to your shopping cart")
	s.Modal.Hidden = true
	dismiss := drivertest.El("Continue shopping")
	dismiss.OnClick = func(d *drivertest.Driver) error {
		d.Do(func() { s.Modal.Hidden = true })
		return nil
	}
	s.Modal.Child(at(c.ContinueShopping), dismiss)
	if opts.ModalCheckout {
		proceed := drivertest.El("Proceed to checkout")
		proceed.OnClick = goTo(CartURL)
		s.Modal.Child(at(c.ProceedToCheckout), proceed)
	}

	s.AddButton = drivertest.El("Add to cart")
	s.AddButton.OnClick = func(d *drivertest.Driver) error {
		d.Do(func() {
			p.Set(at(c.CartModal), s.Modal)
			s.Modal.Hidden = false
			s.Cart.Remove(at(c.EmptyCart))
			s.Cart.Add(at(c.CartItems), drivertest.El(""))
			s.Cart.Add(at(c.CartProductNames), drivertest.El(productName(0)))
			s.Cart.Set(at(c.CartSubtotal), drivertest.El("$29.00"))
		})
		return nil
	}
	p.Add(at(c.AddToCart), s.AddButton)

	if opts.HeaderCart {
		cart := drivertest.El("Cart")
		cart.OnClick = goTo(CartURL)
		p.Add(at(c.HeaderCart), cart)
	}
}
