// Package cdp drives Chrome and Edge over the DevTools protocol with chromedp.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const worldName = "storewalk"

// Driver is a single chromedp tab.
type Driver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	mu     sync.Mutex
	frame  *frame
	closed bool
}

// frame is an entered child frame and the isolated world scripts run in.
type frame struct {
	id    cdpproto.FrameID
	world runtime.ExecutionContextID
}

var _ driver.Driver = (*Driver)(nil)

type flag struct {
	name  string
	value interface{}
}

// allocatorFlags lists the command line switches derived from cfg, in order.
func allocatorFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"headless", cfg.Headless},
		{"disable-dev-shm-usage", true},
		// Cross origin frames must share the page's process to be scriptable.
		{"disable-features", "IsolateOrigins,site-per-process,Translate,BlinkGenPropertyTrees"},
		{"disable-site-isolation-trials", true},
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags = append(flags, flag{key, value})
			continue
		}
		flags = append(flags, flag{arg, true})
	}
	return flags
}

// AllocatorOptions translates the browser config into chromedp allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.NoSandbox)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Width, cfg.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Open launches a browser and attaches to its first tab. ctx bounds the launch
// only; the browser lives until Close.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	log := logger.Named("cdp")

	allocCtx, allocCancel := chromedp.NewExecAllocator(launchContext(ctx), AllocatorOptions(cfg)...)
	sugar := log.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run allocates the browser and must not carry the launch
	// deadline, or the process dies with it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			allocCancel()
			return nil, driver.WrapSession("launch", err)
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		return nil, driver.WrapSession("launch", ctx.Err())
	}

	log.Info("Browser launched.", zap.String("kind", string(cfg.Kind)), zap.Bool("headless", cfg.Headless))
	return &Driver{ctx: tabCtx, cancel: tabCancel, allocCancel: allocCancel, logger: log}, nil
}

func (d *Driver) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := callContext(d.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// fail maps an error from the protocol layer. The caller's own expiry wins;
// a dead tab is a session failure; anything else is an ordinary error.
func (d *Driver) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d.ctx.Err() != nil {
		return driver.WrapSession(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *Driver) state() (*frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrSessionClosed
	}
	return d.frame, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if _, err := d.state(); err != nil {
		return err
	}
	if err := d.runActions(ctx, chromedp.Navigate(url)); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return driver.WrapSession("navigate", err)
	}
	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	raw, err := d.call(ctx, locationBody)
	if err != nil {
		return "", err
	}
	var href string
	if err := jsonAPI.Unmarshal(raw, &href); err != nil {
		return "", fmt.Errorf("decode location: %w", err)
	}
	return href, nil
}

func (d *Driver) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	return d.find(ctx, by, nil)
}

func (d *Driver) find(ctx context.Context, by driver.By, scope *element) ([]driver.Element, error) {
	if err := by.Validate(); err != nil {
		return nil, err
	}
	by = by.Normalize()
	args := []any{string(by.Strategy), by.Expr, "", 0}
	if scope != nil {
		args[2], args[3] = scope.key, scope.idx
	}
	raw, err := d.call(ctx, findBody, args...)
	if err != nil {
		return nil, err
	}
	var set struct {
		Key   string `json:"key"`
		Count int    `json:"count"`
	}
	if err := jsonAPI.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	elements := make([]driver.Element, set.Count)
	for i := range elements {
		elements[i] = &element{d: d, key: set.Key, idx: i}
	}
	return elements, nil
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	return d.call(ctx, script, args...)
}

func (d *Driver) SwitchToFrame(ctx context.Context, index int) error {
	if _, err := d.state(); err != nil {
		return err
	}
	var tree *page.FrameTree
	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(c)
		return err
	}))
	if err != nil {
		return d.fail(ctx, "frame tree", err)
	}
	if index < 0 || index >= len(tree.ChildFrames) {
		return fmt.Errorf("%w: index %d", driver.ErrNoSuchFrame, index)
	}
	fr := &frame{id: tree.ChildFrames[index].Frame.ID}
	if err := d.refreshWorld(ctx, fr); err != nil {
		return err
	}
	d.mu.Lock()
	d.frame = fr
	d.mu.Unlock()
	d.logger.Debug("Entered frame.", zap.Int("index", index), zap.String("frame_id", string(fr.id)))
	return nil
}

func (d *Driver) SwitchToDefault(ctx context.Context) error {
	if _, err := d.state(); err != nil {
		return err
	}
	d.mu.Lock()
	d.frame = nil
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
	go func() { done <- chromedp.Cancel(d.ctx) }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.cancel()
	d.allocCancel()
	d.logger.Debug("Browser closed.")

	if err != nil && !errors.Is(err, context.Canceled) {
		return driver.WrapSession("close", err)
	}
	return nil
}

// refreshWorld (re)creates the isolated world of fr. Worlds die when the
// frame navigates; the frame id survives.
func (d *Driver) refreshWorld(ctx context.Context, fr *frame) error {
	var world runtime.ExecutionContextID
	err := d.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		world, err = page.CreateIsolatedWorld(fr.id).WithWorldName(worldName).Do(c)
		return err
	}))
	if err != nil {
		return d.fail(ctx, "create isolated world", err)
	}
	d.mu.Lock()
	fr.world = world
	d.mu.Unlock()
	return nil
}

// call runs a function body in the active browsing context and returns its
// JSON result.
func (d *Driver) call(ctx context.Context, body string, args ...any) (json.RawMessage, error) {
	fr, err := d.state()
	if err != nil {
		return nil, err
	}
	expr, err := buildCall(body, args)
	if err != nil {
		return nil, err
	}

	obj, err := d.evaluate(ctx, expr, fr)
	if err != nil && fr != nil && isContextLost(err) {
		if err = d.refreshWorld(ctx, fr); err == nil {
			obj, err = d.evaluate(ctx, expr, fr)
		}
	}
	if err != nil {
		return nil, d.fail(ctx, "evaluate", err)
	}
	if obj == nil {
		return nil, errors.New("evaluate: empty result")
	}
	return decodeEnvelope([]byte(obj.Value))
}

func (d *Driver) evaluate(ctx context.Context, expr string, fr *frame) (*runtime.RemoteObject, error) {
	opts := []chromedp.EvaluateOption{func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}}
	if fr != nil {
		d.mu.Lock()
		world := fr.world
		d.mu.Unlock()
		opts = append(opts, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithContextID(world)
		})
	}
	var obj *runtime.RemoteObject
	err := d.runActions(ctx, chromedp.Evaluate(expr, &obj, opts...))
	return obj, err
}

type elementRef struct {
	Marker bool   `json:"__storewalkElement"`
	Key    string `json:"key"`
	Idx    int    `json:"idx"`
}

func buildCall(body string, args []any) (string, error) {
	encoded := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *element:
			encoded[i] = elementRef{Marker: true, Key: v.key, Idx: v.idx}
		case driver.Element:
			return "", fmt.Errorf("argument %d is an element of another driver", i)
		default:
			encoded[i] = v
		}
	}
	raw, err := jsonAPI.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("encode script arguments: %w", err)
	}
	return fmt.Sprintf(callTemplate, prelude, raw, body), nil
}

type envelope struct {
	OK    bool            `json:"ok"`
	Value json.RawMessage `json:"value"`
	Stale bool            `json:"stale"`
	Error string          `json:"error"`
}

func decodeEnvelope(raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := jsonAPI.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	if !env.OK {
		if env.Stale {
			return nil, driver.ErrStaleElement
		}
		return nil, fmt.Errorf("script error: %s", env.Error)
	}
	if len(env.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Value, nil
}

func isContextLost(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Cannot find context with specified id") ||
		strings.Contains(msg, "Execution context was destroyed")
}
