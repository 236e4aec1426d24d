// Package rodriver drives Chromium through go-rod. It is the alternative to
// the chromedp backend for hosts where rod's managed launcher is preferred.
package rodriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

// Driver wraps one rod page and the browser that owns it.
type Driver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	top      *rod.Page
	logger   *zap.Logger

	mu     sync.Mutex
	active *rod.Page
	closed bool
}

var _ driver.Driver = (*Driver)(nil)

// newLauncher configures the browser process from cfg.
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-site-isolation-trials")

	if cfg.ExecPath != "" {
		l = l.Bin(cfg.ExecPath)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", cfg.Width, cfg.Height))
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			l = l.Set(flags.Flag(key), value)
			continue
		}
		l = l.Set(flags.Flag(arg))
	}
	return l
}

// Open launches the browser and opens a blank page. ctx bounds the launch only.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	log := logger.Named("rod")
	l := newLauncher(cfg)

	type launched struct {
		browser *rod.Browser
		page    *rod.Page
		err     error
	}
	done := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		if err != nil {
			done <- launched{err: fmt.Errorf("launch browser: %w", err)}
			return
		}
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			done <- launched{err: fmt.Errorf("connect to browser: %w", err)}
			return
		}
		p, err := b.Page(proto.TargetCreateTarget{})
		if err != nil {
			_ = b.Close()
			done <- launched{err: fmt.Errorf("open page: %w", err)}
			return
		}
		done <- launched{browser: b, page: p}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			l.Kill()
			return nil, driver.WrapSession("launch", res.err)
		}
		log.Info("Browser launched.", zap.String("kind", string(cfg.Kind)), zap.Bool("headless", cfg.Headless))
		return &Driver{launcher: l, browser: res.browser, top: res.page, active: res.page, logger: log}, nil
	case <-ctx.Done():
		l.Kill()
		return nil, driver.WrapSession("launch", ctx.Err())
	}
}

func (d *Driver) page() (*rod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrSessionClosed
	}
	return d.active, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if _, err := d.page(); err != nil {
		return err
	}
	p := d.top.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return d.navigationFailure(ctx, err)
	}
	if err := p.WaitLoad(); err != nil {
		return d.navigationFailure(ctx, err)
	}
	d.mu.Lock()
	d.active = d.top
	d.mu.Unlock()
	return nil
}

func (d *Driver) navigationFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	return driver.WrapSession("navigate", err)
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	p, err := d.page()
	if err != nil {
		return "", err
	}
	res, err := p.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", d.fail(ctx, "current url", err)
	}
	return res.Value.Str(), nil
}

func (d *Driver) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	if err := by.Validate(); err != nil {
		return nil, err
	}
	by = by.Normalize()
	p = p.Context(ctx)

	var found rod.Elements
	if by.Strategy == driver.StrategyXPath {
		found, err = p.ElementsX(by.Expr)
	} else {
		found, err = p.Elements(by.Expr)
	}
	if err != nil {
		return nil, d.fail(ctx, "find", err)
	}
	return d.wrap(found), nil
}

func (d *Driver) wrap(found rod.Elements) []driver.Element {
	out := make([]driver.Element, len(found))
	for i, el := range found {
		out[i] = &element{d: d, el: el}
	}
	return out
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	jsArgs := make([]interface{}, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *element:
			jsArgs[i] = v.el.Object
		case driver.Element:
			return nil, fmt.Errorf("argument %d is an element of another driver", i)
		default:
			jsArgs[i] = v
		}
	}
	res, err := p.Context(ctx).Eval("function() {\n"+script+"\n}", jsArgs...)
	if err != nil {
		return nil, d.fail(ctx, "evaluate", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode script result: %w", err)
	}
	return raw, nil
}

func (d *Driver) SwitchToFrame(ctx context.Context, index int) error {
	if _, err := d.page(); err != nil {
		return err
	}
	iframes, err := d.top.Context(ctx).Elements("iframe")
	if err != nil {
		return d.fail(ctx, "list frames", err)
	}
	if index < 0 || index >= len(iframes) {
		return fmt.Errorf("%w: index %d", driver.ErrNoSuchFrame, index)
	}
	fp, err := iframes[index].Context(ctx).Frame()
	if err != nil {
		return d.fail(ctx, "enter frame", err)
	}
	d.mu.Lock()
	d.active = fp
	d.mu.Unlock()
	d.logger.Debug("Entered frame.", zap.Int("index", index))
	return nil
}

func (d *Driver) SwitchToDefault(ctx context.Context) error {
	if _, err := d.page(); err != nil {
		return err
	}
	d.mu.Lock()
	d.active = d.top
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

	done := make(chan error, 1)
	go func() { done <- d.browser.Close() }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.launcher.Kill()
	d.launcher.Cleanup()
	d.logger.Debug("Browser closed.")
	if err != nil {
		return driver.WrapSession("close", err)
	}
	return nil
}

// fail classifies rod errors. Handles to nodes of a replaced document surface
// as lookup failures of their remote object or execution context.
func (d *Driver) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Could not find object with given id"),
		strings.Contains(msg, "Cannot find context with specified id"),
		strings.Contains(msg, "Node is detached from document"),
		strings.Contains(msg, "No node with given id found"):
		return fmt.Errorf("%s: %w", op, driver.ErrStaleElement)
	case errors.Is(err, io.EOF),
		strings.Contains(msg, "use of closed network connection"),
		strings.Contains(msg, "websocket: close"):
		return driver.WrapSession(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
