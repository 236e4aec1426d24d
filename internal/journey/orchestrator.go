// Package journey drives the scripted storefront scenario through the page
// states and records its outcome.
package journey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/credential"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
	"github.com/xkilldash9x/storewalk/internal/pages"
	"github.com/xkilldash9x/storewalk/internal/readiness"
)

const defaultCloseTimeout = 10 * time.Second

// Options is the scenario an Orchestrator runs. It is copied on New.
type Options struct {
	BaseURL     string
	Query       string
	Profile     pages.Profile
	EmailPrefix string
	EmailDomain string
	Catalog     pages.Catalog
	Timings     pages.Timings
	// CloseTimeout bounds session release, which runs detached from the
	// run's context.
	CloseTimeout time.Duration
}

// OptionsFrom builds the scenario from the journey, readiness and actions
// sections of cfg.
func OptionsFrom(cfg config.Interface) Options {
	j := cfg.Journey()
	catalog := pages.DefaultCatalog()
	if j.CartPath != "" {
		catalog.CartPath = j.CartPath
	}
	return Options{
		BaseURL: j.BaseURL,
		Query:   j.Query,
		Profile: pages.Profile{
			FirstName: j.FirstName,
			LastName:  j.LastName,
			Birthdate: j.Birthdate,
		},
		EmailPrefix:  j.EmailPrefix,
		EmailDomain:  j.EmailDomain,
		Catalog:      catalog,
		Timings:      pages.TimingsFrom(cfg.Readiness(), cfg.Actions()),
		CloseTimeout: defaultCloseTimeout,
	}
}

// Orchestrator runs journeys. Run may be called from several goroutines;
// every call acquires its own session.
type Orchestrator struct {
	opener driver.Opener
	opts   Options
	logger *zap.Logger
}

// New validates opts and binds them to opener.
func New(opener driver.Opener, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if opener == nil {
		return nil, errors.New("journey: opener is required")
	}
	if logger == nil {
		logger = observability.GetLogger()
	}
	if opts.BaseURL == "" {
		return nil, errors.New("journey: base url is required")
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, errors.New("journey: search query is required")
	}
	if err := opts.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("journey: %w", err)
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	return &Orchestrator{opener: opener, opts: opts, logger: logger.Named("journey")}, nil
}

// Run executes one journey on a fresh session and returns its result, which
// is never nil. The session is closed before Run returns, including after a
// hard failure or cancellation of ctx.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	r := &run{
		res: &Result{
			RunID:       uuid.NewString(),
			StartedAt:   time.Now(),
			Checkpoints: []Checkpoint{},
			Annotations: []Annotation{},
		},
		opts: o.opts,
	}
	r.logger = o.logger.With(observability.RunID(r.res.RunID))
	r.gen = credential.NewGenerator(o.opts.EmailPrefix, o.opts.EmailDomain, r.logger)
	r.logger.Info("Journey started.", zap.String("url", o.opts.BaseURL), zap.String("query", o.opts.Query))
	defer r.finish()

	var d driver.Driver
	err := r.do(StepOpenSession, func() (err error) {
		d, err = o.opener.Open(ctx)
		return err
	})
	if err != nil {
		return r.res
	}
	defer o.release(ctx, d, r.logger)

	r.tk = pages.NewToolkit(d, o.opts.Catalog, o.opts.Timings, r.logger)
	_ = r.walk(ctx)
	return r.res
}

func (o *Orchestrator) release(ctx context.Context, d driver.Driver, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CloseTimeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		logger.Warn("Failed to close browser session.", zap.Error(err))
		return
	}
	logger.Debug("Browser session closed.")
}

// run is the state of a single Run call.
type run struct {
	res    *Result
	opts   Options
	tk     *pages.Toolkit
	gen    *credential.Generator
	logger *zap.Logger
}

type step struct {
	name string
	fn   func() error
}

// walk fires the transitions in order and stops at the first hard failure.
func (r *run) walk(ctx context.Context) error {
	var (
		home    *pages.Home
		login   *pages.Login
		reg     *pages.Registration
		search  *pages.Search
		product *pages.Product
		cart    *pages.Cart
		route   pages.CartRoute
	)

	steps := []step{
		{StepOpenShop, func() (err error) {
			home, err = pages.Open(ctx, r.tk, r.opts.BaseURL)
			return r.entered(StepOpenShop, home, err)
		}},
		{StepGoToLogin, func() (err error) {
			login, err = home.GoToLogin(ctx)
			return r.entered(StepGoToLogin, login, err)
		}},
		{StepGoToRegistration, func() (err error) {
			reg, err = login.GoToRegistration(ctx)
			return r.entered(StepGoToRegistration, reg, err)
		}},
		{StepFillRegistration, func() error {
			report, err := reg.Fill(ctx, r.opts.Profile, r.gen)
			r.res.Email = report.Credential.Email
			if err != nil {
				return err
			}
			r.noteFill(report)
			return nil
		}},
		{StepSubmitRegistration, func() (err error) {
			home, err = reg.Submit(ctx)
			return r.entered(StepSubmitRegistration, home, err)
		}},
		{StepVerifyAccount, func() error {
			ok, err := home.IsUserLoggedIn(ctx)
			if err != nil {
				return err
			}
			detail := "customer account link displayed"
			if !ok {
				detail = "customer account link not displayed after registration"
			}
			return r.checkpoint(CheckpointAuthenticated, ok, detail)
		}},
		{StepSearch, func() (err error) {
			search, err = home.Search(ctx, r.opts.Query)
			return r.entered(StepSearch, search, err)
		}},
		{StepVerifyResults, func() error {
			n, err := search.ResultCount(ctx)
			if err != nil {
				return err
			}
			if name, err := search.FirstProductName(ctx); err != nil {
				r.annotate(StepVerifyResults, Classify(err), fmt.Sprintf("read first result: %v", err))
			} else {
				r.logger.Info("First search result.", observability.Step(StepVerifyResults), zap.String("product", name))
			}
			return r.checkpoint(CheckpointSearchResults, n > 0, fmt.Sprintf("%d results for %q", n, r.opts.Query))
		}},
		{StepSelectProduct, func() (err error) {
			product, err = search.SelectFirst(ctx)
			return r.entered(StepSelectProduct, product, err)
		}},
		{StepVerifyProduct, func() error {
			if name, err := product.Name(ctx); err != nil {
				r.annotate(StepVerifyProduct, Classify(err), fmt.Sprintf("read product name: %v", err))
			} else {
				r.logger.Info("Product opened.", observability.Step(StepVerifyProduct), zap.String("product", name))
			}
			ok, err := product.HasImage(ctx)
			if err != nil {
				return err
			}
			detail := "cover image displayed"
			if !ok {
				detail = "cover image missing, hidden or without source"
			}
			return r.checkpoint(CheckpointProductImage, ok, detail)
		}},
		{StepAddToCart, func() error {
			shown, err := product.AddToCart(ctx)
			if err != nil {
				return err
			}
			if !shown {
				r.annotate(StepAddToCart, KindElementNotFound, "cart confirmation did not appear")
			}
			return nil
		}},
		{StepProceedToCart, func() (err error) {
			cart, route, err = product.ProceedToCart(ctx)
			soft := route.Failures
			// The failure that ended the tree is reported as the hard error.
			if err != nil && len(soft) > 0 && errors.Is(err, soft[len(soft)-1].Err) {
				soft = soft[:len(soft)-1]
			}
			for _, f := range soft {
				r.annotate(StepProceedToCart, Classify(f.Err), fmt.Sprintf("%s tier failed: %v", f.Tier, f.Err))
			}
			return r.entered(StepProceedToCart, cart, err)
		}},
		{StepVerifyCart, func() error {
			in, err := cart.IsProductInCart(ctx)
			if err != nil {
				return err
			}
			r.res.Cart = r.summarize(ctx, cart, route)
			return r.checkpoint(CheckpointCartItem, in, fmt.Sprintf("%d items in cart", r.res.Cart.Items))
		}},
	}

	for _, s := range steps {
		if err := r.do(s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// summarize takes the informational cart reads. Their failures are
// annotations.
func (r *run) summarize(ctx context.Context, cart *pages.Cart, route pages.CartRoute) *CartSummary {
	sum := &CartSummary{Tier: string(route.Tier)}
	var err error
	if sum.Items, err = cart.ItemCount(ctx); err != nil {
		r.annotate(StepVerifyCart, Classify(err), fmt.Sprintf("count cart lines: %v", err))
	}
	if sum.Product, err = cart.FirstProductName(ctx); err != nil {
		r.annotate(StepVerifyCart, Classify(err), fmt.Sprintf("read cart product: %v", err))
	}
	if sum.Subtotal, err = cart.Subtotal(ctx); err != nil {
		r.annotate(StepVerifyCart, Classify(err), fmt.Sprintf("read subtotal: %v", err))
	}
	r.logger.Info("Cart contents.",
		observability.Step(StepVerifyCart),
		zap.String("tier", sum.Tier),
		zap.Int("items", sum.Items),
		zap.String("product", sum.Product),
		zap.Float64("subtotal", sum.Subtotal),
	)
	return sum
}

// noteFill turns the deviations of a filled form into annotations.
func (r *run) noteFill(report pages.FillReport) {
	if report.EmailPrefilled {
		r.annotate(StepFillRegistration, "", "email field was pre-filled; existing address kept")
	}
	switch report.SecretOutcome {
	case credential.Replaced:
		r.annotate(StepFillRegistration, "", "generated secret not rated strong; fallback submitted")
	case credential.Unverified:
		r.annotate(StepFillRegistration, "", "strength indicator unavailable; secret unverified")
	}
	for _, group := range [][]pages.StepOutcome{report.Optional, report.Consents} {
		for _, o := range group {
			if o.Detail == "" {
				continue
			}
			kind := Kind("")
			if o.Status == pages.StepSkipped {
				kind = KindElementNotFound
			}
			r.annotate(StepFillRegistration, kind, fmt.Sprintf("%s %s: %s", o.Step, o.Status, o.Detail))
		}
	}
}

// do runs one step and records its hard failure.
func (r *run) do(name string, fn func() error) error {
	start := time.Now()
	log := r.logger.With(observability.Step(name))
	log.Debug("Step started.")
	if err := fn(); err != nil {
		r.fail(name, err)
		return err
	}
	log.Info("Step completed.", observability.Elapsed(time.Since(start)))
	return nil
}

type state interface {
	PageName() string
	Entry() readiness.Result
}

// entered annotates a page whose readiness check timed out.
func (r *run) entered(step string, s state, err error) error {
	if err != nil {
		return err
	}
	if entry := s.Entry(); !entry.Ready() {
		r.annotate(step, KindReadinessTimeout,
			fmt.Sprintf("%s page not ready after %s: %s", s.PageName(), entry.Elapsed, strings.Join(entry.Failed, ", ")))
	}
	return nil
}

func (r *run) checkpoint(name string, ok bool, detail string) error {
	r.res.Checkpoints = append(r.res.Checkpoints, Checkpoint{Name: name, Passed: ok, Detail: detail})
	if !ok {
		return &CheckpointError{Checkpoint: name, Detail: detail}
	}
	r.logger.Info("Checkpoint passed.", observability.Checkpoint(name), zap.String("detail", detail))
	return nil
}

func (r *run) annotate(step string, kind Kind, msg string) {
	r.res.Annotations = append(r.res.Annotations, Annotation{Step: step, Kind: kind, Message: msg})
	r.logger.Info("Soft failure recorded.",
		observability.Step(step),
		zap.String("kind", string(kind)),
		zap.String("message", msg),
	)
}

func (r *run) fail(step string, err error) {
	kind := Classify(err)
	r.res.Failure = &Failure{Kind: kind, Step: step, Message: err.Error()}
	fields := []zap.Field{observability.Step(step), zap.String("kind", string(kind)), zap.Error(err)}
	var cpErr *CheckpointError
	if errors.As(err, &cpErr) {
		fields = append(fields, observability.Checkpoint(cpErr.Checkpoint))
	}
	r.logger.Error("Journey step failed.", fields...)
}

func (r *run) finish() {
	r.res.FinishedAt = time.Now()
	r.res.Status = StatusPassed
	if r.res.Failure != nil {
		r.res.Status = StatusFailed
	}
	r.logger.Info("Journey finished.",
		zap.String("status", string(r.res.Status)),
		zap.Int("checkpoints", len(r.res.Checkpoints)),
		zap.Int("annotations", len(r.res.Annotations)),
		observability.Elapsed(r.res.Duration()),
	)
}
