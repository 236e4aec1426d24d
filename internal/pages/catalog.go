package pages

import (
	"fmt"
	"reflect"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
)

// Catalog holds every locator the page states use. Themes that move an
// affordance are handled by editing the catalog, not the states.
type Catalog struct {
	// Shared readiness affordances.
	Loading     locator.Locator
	MainContent locator.Locator
	Interactive locator.Locator
	ShopFrame   locator.Locator

	// Home.
	SignInLink  locator.Locator
	SearchInput locator.Locator
	UserAccount locator.Locator

	// Login.
	CreateAccountLink locator.Locator
	LoginEmail        locator.Locator
	LoginSecret       locator.Locator
	SignInButton      locator.Locator

	// Registration.
	SocialTitle     locator.Locator
	FirstName       locator.Locator
	LastName        locator.Locator
	Email           locator.Locator
	Secret          locator.Locator
	SecretStrength  locator.Locator
	Birthdate       locator.Locator
	PartnerOffers   locator.Locator
	Terms           locator.Locator
	Newsletter      locator.Locator
	CustomerPrivacy locator.Locator
	SaveButton      locator.Locator

	// Search.
	SearchResults locator.Locator
	FirstProduct  locator.Locator
	ProductTitles locator.Locator

	// Product.
	ProductImage      locator.Locator
	AddToCart         locator.Locator
	ProductName       locator.Locator
	CartModal         locator.Locator
	ProceedToCheckout locator.Locator
	ContinueShopping  locator.Locator
	HeaderCart        locator.Locator

	// Cart.
	CartItems        locator.Locator
	CartProductNames locator.Locator
	CartSubtotal     locator.Locator
	EmptyCart        locator.Locator

	// CartPath is appended to the shop root when no product address can be
	// rewritten into a cart address.
	CartPath string
}

// DefaultCatalog returns the locators of the PrestaShop classic theme.
func DefaultCatalog() Catalog {
	css := driver.ByCSS
	return Catalog{
		Loading: locator.New("loading_banner",
			driver.ByXPath("//*[contains(text(), 'A shop is on its way') or contains(text(), 'STRATEGY')]")),
		MainContent: locator.New("main_content", css("main"), css("#main"), css(".page-content"), css(".products")),
		Interactive: locator.New("interactive_control", css("a"), css("button"), css("input"), css(".product")),
		ShopFrame:   locator.New("shop_frame", css("iframe")),

		SignInLink:  locator.New("sign_in_link", css("a[title='Log in to your customer account']")),
		SearchInput: locator.New("search_input", css("input[name='s']")),
		UserAccount: locator.New("user_account", css(".account")),

		CreateAccountLink: locator.New("create_account_link", driver.ByXPath("//a[contains(text(), 'Create one here')]")),
		LoginEmail:        locator.New("login_email", driver.ByName("email")),
		LoginSecret:       locator.New("login_password", driver.ByName("password")),
		SignInButton:      locator.New("sign_in_button", driver.ByID("submit-login")),

		SocialTitle:     locator.New("social_title_mr", driver.ByID("field-id_gender-1")),
		FirstName:       locator.New("first_name", driver.ByName("firstname")),
		LastName:        locator.New("last_name", driver.ByName("lastname")),
		Email:           locator.New("email", driver.ByName("email")),
		Secret:          locator.New("password", driver.ByName("password")),
		SecretStrength:  locator.New("password_strength", css(".password-strength")),
		Birthdate:       locator.New("birthdate", driver.ByName("birthday")),
		PartnerOffers:   locator.New("partner_offers", driver.ByName("optin")),
		Terms:           locator.New("terms", driver.ByName("psgdpr")),
		Newsletter:      locator.New("newsletter", driver.ByName("newsletter")),
		CustomerPrivacy: locator.New("customer_privacy", driver.ByName("customer_privacy")),
		SaveButton: locator.New("save_button",
			driver.ByXPath("//button[contains(text(), 'Save') or contains(@class, 'btn-primary')]"),
			css("button[type='submit']"),
			css(".btn-primary")),

		SearchResults: locator.New("search_results", css(".products article")),
		FirstProduct:  locator.New("first_product", css(".products article:first-child a")),
		ProductTitles: locator.New("product_titles", css(".product-title a")),

		ProductImage:      locator.New("product_image", css(".product-cover img"), css(".product-images img")),
		AddToCart:         locator.New("add_to_cart", css(".add-to-cart"), css(".btn-primary[data-button-action='add-to-cart']")),
		ProductName:       locator.New("product_name", css(".h1"), css("h1[itemprop='name']")),
		CartModal:         locator.New("cart_modal", css(".cart-modal"), css("#blockcart-modal"), css(".modal-dialog")),
		ProceedToCheckout: locator.New("proceed_to_checkout", css("a[href*='controller=cart']"), css(".btn-primary[href*='cart']")),
		ContinueShopping:  locator.New("continue_shopping", css(".btn-secondary"), css(".btn[data-dismiss='modal']")),
		HeaderCart:        locator.New("header_cart", css(".shopping-cart"), css(".cart-preview"), css("a[href*='cart']")),

		CartItems:        locator.New("cart_items", css(".cart-item"), css(".cart-detailed"), css("tr.cart-item")),
		CartProductNames: locator.New("cart_product_names", css(".product-name"), css(".cart-item-name")),
		CartSubtotal:     locator.New("cart_subtotal", css(".cart-subtotal"), css(".subtotal")),
		EmptyCart:        locator.New("empty_cart", css(".no-items"), css(".cart-empty")),

		CartPath: "index.php?controller=cart&action=show",
	}
}

// Validate checks every locator of the catalog.
func (c Catalog) Validate() error {
	v := reflect.ValueOf(c)
	for i := 0; i < v.NumField(); i++ {
		loc, ok := v.Field(i).Interface().(locator.Locator)
		if !ok {
			continue
		}
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("catalog field %s: %w", v.Type().Field(i).Name, err)
		}
	}
	return nil
}
