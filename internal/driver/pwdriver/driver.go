// Package pwdriver drives Chromium, Edge and Firefox through playwright-go.
package pwdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	installTimeout = 5 * time.Minute
	// actionTimeout caps playwright's actionability wait before falling back
	// to scripted interaction.
	actionTimeout = 5 * time.Second
)

// Driver is one playwright page with its own driver process and browser.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	logger  *zap.Logger

	mu     sync.Mutex
	frame  playwright.Frame
	closed bool
}

var _ driver.Driver = (*Driver)(nil)

// launchOptions maps cfg onto playwright launch options. Edge is Chromium on
// the msedge channel unless an executable is given.
func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append([]string(nil), cfg.Args...),
	}
	if cfg.Kind != config.BrowserFirefox {
		opts.Args = append([]string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
		}, opts.Args...)
	}
	if cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecPath)
	} else if cfg.Kind == config.BrowserEdge {
		opts.Channel = playwright.String("msedge")
	}
	return opts
}

// installBrowsers names the playwright browser bundle cfg needs.
func installBrowsers(cfg config.BrowserConfig) []string {
	switch cfg.Kind {
	case config.BrowserFirefox:
		return []string{"firefox"}
	case config.BrowserEdge:
		return []string{"msedge"}
	default:
		return []string{"chromium"}
	}
}

func ensureInstallation(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) error {
	logger.Info("Verifying playwright browser installation...", zap.Strings("browsers", installBrowsers(cfg)))
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- playwright.Install(&playwright.RunOptions{
			Browsers: installBrowsers(cfg),
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		})
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("install playwright browsers: %w", err)
		}
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}
}

// Open starts a playwright driver, launches the configured browser and opens
// a page. ctx bounds the whole acquisition.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	log := logger.Named("playwright")

	if cfg.Install {
		if err := ensureInstallation(ctx, cfg, log); err != nil {
			return nil, driver.WrapSession("install", err)
		}
	}

	d := &Driver{logger: log}
	errCh := make(chan error, 1)
	go func() { errCh <- d.launch(ctx, cfg) }()
	select {
	case err := <-errCh:
		if err != nil {
			_ = d.shutdown()
			return nil, driver.WrapSession("launch", err)
		}
	case <-ctx.Done():
		go func() {
			<-errCh
			_ = d.shutdown()
		}()
		return nil, driver.WrapSession("launch", ctx.Err())
	}
	log.Info("Browser launched.", zap.String("kind", string(cfg.Kind)), zap.Bool("headless", cfg.Headless))
	return d, nil
}

func (d *Driver) launch(ctx context.Context, cfg config.BrowserConfig) error {
	pw, err := playwright.Run(&playwright.RunOptions{Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		return fmt.Errorf("start playwright driver: %w", err)
	}
	d.pw = pw

	browserType := pw.Chromium
	if cfg.Kind == config.BrowserFirefox {
		browserType = pw.Firefox
	}
	opts := launchOptions(cfg)
	opts.Timeout = timeoutMs(ctx, 0)
	b, err := browserType.Launch(opts)
	if err != nil {
		return fmt.Errorf("launch %s: %w", cfg.Kind, err)
	}
	d.browser = b

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: cfg.Width, Height: cfg.Height},
	})
	if err != nil {
		return fmt.Errorf("create browser context: %w", err)
	}
	p, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	d.page = p
	d.frame = p.MainFrame()
	return nil
}

// do runs a blocking playwright call and gives up when ctx is done. The call
// itself keeps running until playwright's own timeout fires.
func (d *Driver) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// timeoutMs converts what is left of ctx into a playwright timeout, capped at
// limit when limit is positive. A nil result keeps playwright's default.
func timeoutMs(ctx context.Context, limit time.Duration) *float64 {
	remaining := limit
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left < time.Millisecond {
			left = time.Millisecond
		}
		if remaining <= 0 || left < remaining {
			remaining = left
		}
	}
	if remaining <= 0 {
		return nil
	}
	return playwright.Float(float64(remaining.Milliseconds()))
}

func (d *Driver) active() (playwright.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrSessionClosed
	}
	return d.frame, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if _, err := d.active(); err != nil {
		return err
	}
	err := d.do(ctx, func() error {
		_, err := d.page.Goto(url, playwright.PageGotoOptions{
			Timeout:   timeoutMs(ctx, 0),
			WaitUntil: playwright.WaitUntilStateLoad,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return driver.WrapSession("navigate", err)
	}
	d.mu.Lock()
	d.frame = d.page.MainFrame()
	d.mu.Unlock()
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	f, err := d.active()
	if err != nil {
		return "", err
	}
	return f.URL(), nil
}

func selector(by driver.By) (string, error) {
	if err := by.Validate(); err != nil {
		return "", err
	}
	by = by.Normalize()
	if by.Strategy == driver.StrategyXPath {
		return "xpath=" + by.Expr, nil
	}
	return "css=" + by.Expr, nil
}

func (d *Driver) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	f, err := d.active()
	if err != nil {
		return nil, err
	}
	sel, err := selector(by)
	if err != nil {
		return nil, err
	}
	var handles []playwright.ElementHandle
	err = d.do(ctx, func() error {
		var err error
		handles, err = f.QuerySelectorAll(sel)
		return err
	})
	if err != nil {
		return nil, d.fail(ctx, "find", err)
	}
	return d.wrap(handles), nil
}

func (d *Driver) wrap(handles []playwright.ElementHandle) []driver.Element {
	out := make([]driver.Element, len(handles))
	for i, h := range handles {
		out[i] = &element{d: d, h: h}
	}
	return out
}

// scriptWrapper turns a function body using arguments[i] into the single
// argument form playwright evaluates.
const scriptWrapper = "(args) => (function() {\n%s\n}).apply(null, args)"

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	f, err := d.active()
	if err != nil {
		return nil, err
	}
	jsArgs := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *element:
			jsArgs[i] = v.h
		case driver.Element:
			return nil, fmt.Errorf("argument %d is an element of another driver", i)
		default:
			jsArgs[i] = v
		}
	}
	var result interface{}
	err = d.do(ctx, func() error {
		var err error
		result, err = f.Evaluate(fmt.Sprintf(scriptWrapper, script), jsArgs)
		return err
	})
	if err != nil {
		return nil, d.fail(ctx, "evaluate", err)
	}
	raw, err := jsonAPI.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode script result: %w", err)
	}
	return raw, nil
}

func (d *Driver) SwitchToFrame(ctx context.Context, index int) error {
	if _, err := d.active(); err != nil {
		return err
	}
	children := d.page.MainFrame().ChildFrames()
	if index < 0 || index >= len(children) {
		return fmt.Errorf("%w: index %d", driver.ErrNoSuchFrame, index)
	}
	d.mu.Lock()
	d.frame = children[index]
	d.mu.Unlock()
	d.logger.Debug("Entered frame.", zap.Int("index", index), zap.String("url", children[index].URL()))
	return nil
}

func (d *Driver) SwitchToDefault(ctx context.Context) error {
	if _, err := d.active(); err != nil {
		return err
	}
	d.mu.Lock()
	d.frame = d.page.MainFrame()
	d.mu.Unlock()
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.do(ctx, func() error { return d.shutdown() })
	d.logger.Debug("Browser closed.")
	if err != nil {
		return driver.WrapSession("close", err)
	}
	return nil
}

func (d *Driver) shutdown() error {
	var errs []error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil && !errors.Is(err, playwright.ErrTargetClosed) {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
	}
	return errors.Join(errs...)
}

// fail classifies playwright errors by their protocol messages.
func (d *Driver) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not attached to the DOM"),
		strings.Contains(msg, "JSHandle is disposed"),
		strings.Contains(msg, "Execution context was destroyed"),
		strings.Contains(msg, "Cannot find context with specified id"),
		strings.Contains(msg, "Frame was detached"):
		return fmt.Errorf("%s: %w", op, driver.ErrStaleElement)
	case errors.Is(err, playwright.ErrTargetClosed),
		strings.Contains(msg, "has been closed"):
		return driver.WrapSession(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
