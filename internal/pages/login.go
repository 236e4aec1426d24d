package pages

import (
	"context"
	"fmt"
)

// Login is the authentication page.
type Login struct {
	lifecycle
	tk *Toolkit
}

func newLogin(ctx context.Context, tk *Toolkit) *Login {
	return &Login{lifecycle: tk.enter(ctx, tk.shopSpec(PageLogin)), tk: tk}
}

// GoToRegistration follows the create-account link.
func (l *Login) GoToRegistration(ctx context.Context) (*Registration, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	link, _, err := l.tk.waitFor(ctx, l.tk.Driver, l.tk.Catalog.CreateAccountLink, l.tk.Timings.ElementTimeout, false)
	if err != nil {
		return nil, err
	}
	l.consume()
	if err := l.tk.click(ctx, link); err != nil {
		return nil, fmt.Errorf("open registration: %w", err)
	}
	return newRegistration(ctx, l.tk), nil
}

// SignIn logs in with an existing account.
func (l *Login) SignIn(ctx context.Context, email, secret string) (*Home, error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	c := l.tk.Catalog
	if err := l.tk.fillField(ctx, c.LoginEmail, email); err != nil {
		return nil, err
	}
	if err := l.tk.fillField(ctx, c.LoginSecret, secret); err != nil {
		return nil, err
	}
	button, _, err := l.tk.waitFor(ctx, l.tk.Driver, c.SignInButton, l.tk.Timings.ElementTimeout, false)
	if err != nil {
		return nil, err
	}
	l.consume()
	if err := l.tk.click(ctx, button); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return newHome(ctx, l.tk), nil
}
