package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/credential"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

// ErrConsentRequired is returned by Submit when a mandatory consent control
// is present but unticked.
var ErrConsentRequired = errors.New("mandatory consent not given")

// Profile is the customer data typed into the registration form.
type Profile struct {
	FirstName string
	LastName  string
	// Birthdate uses the YYYY-MM-DD form the shop expects. Empty skips it.
	Birthdate string
}

// StepStatus is the outcome of an optional form step.
type StepStatus string

const (
	StepDone       StepStatus = "done"
	StepAlreadySet StepStatus = "already_set"
	StepSkipped    StepStatus = "skipped"
	StepFailed     StepStatus = "failed"
)

// StepOutcome records one optional or consent step. These never fail the
// form on their own.
type StepOutcome struct {
	Step   string
	Status StepStatus
	Detail string
}

// FillReport describes what Fill did to the form.
type FillReport struct {
	Credential     credential.Credential
	EmailPrefilled bool
	SecretOutcome  credential.Outcome
	Optional       []StepOutcome
	Consents       []StepOutcome
}

// Registration is the account creation form.
type Registration struct {
	lifecycle
	tk *Toolkit
}

func newRegistration(ctx context.Context, tk *Toolkit) *Registration {
	form := tk.predicates.Present("form_present", tk.Catalog.FirstName, tk.Timings.ContentTimeout)
	return &Registration{lifecycle: tk.enter(ctx, tk.shopSpec(PageRegistration, form)), tk: tk}
}

// Fill completes the form with p and a credential from gen. Name, email and
// password fields are required; everything else is recorded in the report.
func (r *Registration) Fill(ctx context.Context, p Profile, gen *credential.Generator) (FillReport, error) {
	var report FillReport
	if err := r.check(); err != nil {
		return report, err
	}
	c := r.tk.Catalog

	cred, err := gen.Generate()
	if err != nil {
		return report, err
	}

	report.Optional = append(report.Optional, r.optional("social_title", func() (StepStatus, error) {
		return r.tick(ctx, c.SocialTitle)
	}))
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if err := r.tk.fillField(ctx, c.FirstName, p.FirstName); err != nil {
		return report, err
	}
	if err := r.tk.fillField(ctx, c.LastName, p.LastName); err != nil {
		return report, err
	}

	email, _, err := r.tk.waitFor(ctx, r.tk.Driver, c.Email, r.tk.Timings.ElementTimeout, false)
	if err != nil {
		return report, err
	}
	current, err := email.Attribute(ctx, "value")
	if err != nil {
		return report, fmt.Errorf("read email field: %w", err)
	}
	if current = strings.TrimSpace(current); current != "" {
		cred.Email = current
		report.EmailPrefilled = true
		r.logger.Info("Email already filled; keeping it.", zap.String("email", current))
	} else if err := r.tk.fill(ctx, email, cred.Email); err != nil {
		return report, fmt.Errorf("fill email: %w", err)
	}

	if err := r.tk.fillField(ctx, c.Secret, cred.Secret); err != nil {
		return report, err
	}
	resubmit := func(ctx context.Context, secret string) error {
		return r.tk.fillField(ctx, c.Secret, secret)
	}
	outcome, err := gen.Reconcile(ctx, &cred, resubmit, r.readStrength)
	report.Credential = cred
	report.SecretOutcome = outcome
	if err != nil {
		return report, err
	}

	report.Optional = append(report.Optional, r.optional("birthdate", func() (StepStatus, error) {
		if p.Birthdate == "" {
			return StepSkipped, nil
		}
		el, err := r.tk.find(ctx, c.Birthdate)
		if err != nil {
			return StepFailed, err
		}
		return StepDone, r.tk.fill(ctx, el, p.Birthdate)
	}))

	for _, consent := range []locator.Locator{c.CustomerPrivacy, c.Terms} {
		report.Consents = append(report.Consents, r.optional(consent.Name, func() (StepStatus, error) {
			return r.tick(ctx, consent)
		}))
	}
	for _, opt := range []locator.Locator{c.Newsletter, c.PartnerOffers} {
		report.Optional = append(report.Optional, r.optional(opt.Name, func() (StepStatus, error) {
			return r.tick(ctx, opt)
		}))
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Registration) tick(ctx context.Context, loc locator.Locator) (StepStatus, error) {
	clicked, err := r.tk.ensureChecked(ctx, loc)
	if err != nil {
		return StepFailed, err
	}
	if !clicked {
		return StepAlreadySet, nil
	}
	return StepDone, nil
}

// optional runs fn and folds any error into the outcome. A missing control
// is a skip.
func (r *Registration) optional(step string, fn func() (StepStatus, error)) StepOutcome {
	out := StepOutcome{Step: step}
	status, err := fn()
	switch {
	case err == nil:
		out.Status = status
	case locator.IsNotFound(err):
		out.Status = StepSkipped
		out.Detail = "control not present"
	default:
		out.Status = StepFailed
		out.Detail = err.Error()
	}

	log := r.logger.With(observability.Step(step), zap.String("status", string(out.Status)))
	if out.Status == StepFailed {
		log.Warn("Optional form step failed; continuing.", zap.Error(err))
	} else {
		log.Info("Optional form step.")
	}
	return out
}

// readStrength waits for the password strength indicator to show any text.
// An indicator that never appears is an error; one that stays blank yields "".
func (r *Registration) readStrength(ctx context.Context) (string, error) {
	var (
		text    string
		seen    bool
		lastErr error
	)
	err := r.tk.Readiness.WaitFor(ctx, r.tk.Timings.StrengthTimeout, func(ctx context.Context) (bool, error) {
		el, _, err := r.tk.Resolver.Resolve(ctx, r.tk.Driver, r.tk.Catalog.SecretStrength)
		if err != nil {
			lastErr = err
			return false, nil
		}
		t, err := el.Text(ctx)
		if err != nil {
			lastErr = err
			return false, nil
		}
		seen, text = true, strings.TrimSpace(t)
		return text != "", nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err == nil || seen {
		r.logger.Debug("Password strength read.", zap.String("signal", text))
		return text, nil
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", err
}

// Submit sends the form and returns the signed-in home page. Every consent
// control that is present must be ticked.
func (r *Registration) Submit(ctx context.Context) (*Home, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	c := r.tk.Catalog
	for _, consent := range []locator.Locator{c.CustomerPrivacy, c.Terms} {
		el, err := r.tk.find(ctx, consent)
		if locator.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ticked, err := el.IsSelected(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", consent.Name, err)
		}
		if !ticked {
			return nil, fmt.Errorf("%w: %s", ErrConsentRequired, consent.Name)
		}
	}

	r.consume()
	if err := r.tk.clickFirst(ctx, c.SaveButton, r.tk.Timings.ElementTimeout); err != nil {
		if driver.IsSessionFailure(err) {
			return nil, err
		}
		return nil, fmt.Errorf("submit registration: %w", err)
	}
	r.logger.Info("Registration submitted.")
	return newHome(ctx, r.tk), nil
}
