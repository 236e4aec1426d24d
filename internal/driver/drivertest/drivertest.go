// Package drivertest provides a scripted, in-memory driver.Driver. Pages are
// registered by URL, elements are indexed by the exact locator expression that
// finds them, and clicks or Enter presses run user supplied callbacks that
// usually navigate or mutate the DOM.
package drivertest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/xkilldash9x/storewalk/internal/driver"
)

// Page is a scripted document.
type Page struct {
	URL        string
	ReadyState string
	Frames     []*Page

	elements map[driver.By][]*Element
}

// NewPage returns an empty, fully loaded document.
func NewPage(rawURL string) *Page {
	return &Page{URL: rawURL, ReadyState: "complete", elements: make(map[driver.By][]*Element)}
}

// Add appends elements found by by. It returns the page for chaining.
func (p *Page) Add(by driver.By, els ...*Element) *Page {
	p.elements[by] = append(p.elements[by], els...)
	return p
}

// Set replaces the elements found by by.
func (p *Page) Set(by driver.By, els ...*Element) *Page {
	p.elements[by] = els
	return p
}

// Remove drops every element found by by.
func (p *Page) Remove(by driver.By) *Page {
	delete(p.elements, by)
	return p
}

// Element is a scripted node.
type Element struct {
	Text      string
	Value     string
	Attrs     map[string]string
	Hidden    bool
	Checkable bool
	Checked   bool
	// ClickErr is returned by Click before any callback runs.
	ClickErr error
	OnClick  func(d *Driver) error
	// OnEnter runs when Type receives a newline, with the value typed so far.
	OnEnter func(d *Driver, value string) error

	Clicks int
	Typed  []string

	children map[driver.By][]*Element
}

// El returns a visible element with the given text.
func El(text string) *Element {
	return &Element{Text: text, Attrs: map[string]string{}}
}

// Checkbox returns a visible, unchecked checkbox.
func Checkbox() *Element {
	e := El("")
	e.Checkable = true
	e.Attrs["type"] = "checkbox"
	return e
}

// Attr sets a markup attribute and returns the element.
func (e *Element) Attr(name, value string) *Element {
	e.Attrs[name] = value
	return e
}

// Child registers nested elements found by by when e is the search scope.
func (e *Element) Child(by driver.By, els ...*Element) *Element {
	if e.children == nil {
		e.children = make(map[driver.By][]*Element)
	}
	e.children[by] = append(e.children[by], els...)
	return e
}

// Driver is the in-memory driver.Driver.
type Driver struct {
	mu      sync.Mutex
	pages   map[string]*Page
	top     *Page
	frame   *Page
	closed  bool
	scripts []string
	visits  []string

	// NavigateErr, when set, fails every Navigate call.
	NavigateErr error
	// ScriptHandler answers scripts other than the shared driver scripts.
	ScriptHandler func(script string, args []any) (any, error)
}

var _ driver.Driver = (*Driver)(nil)

// New returns a driver sitting on about:blank with the given pages registered.
func New(pages ...*Page) *Driver {
	d := &Driver{pages: make(map[string]*Page)}
	for _, p := range pages {
		d.pages[normalizeURL(p.URL)] = p
	}
	d.top = NewPage("about:blank")
	return d
}

// Register adds pages after construction.
func (d *Driver) Register(pages ...*Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range pages {
		d.pages[normalizeURL(p.URL)] = p
	}
}

// Do runs fn under the driver lock so tests can mutate pages while a journey runs.
func (d *Driver) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// Goto moves the active browsing context to rawURL, as a followed link would.
// Unknown addresses load an empty document.
func (d *Driver) Goto(rawURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gotoLocked(rawURL, d.frame != nil)
}

func (d *Driver) gotoLocked(rawURL string, inFrame bool) {
	p, ok := d.pages[normalizeURL(rawURL)]
	if !ok {
		p = NewPage(rawURL)
	}
	d.visits = append(d.visits, rawURL)
	if inFrame {
		d.frame = p
		return
	}
	d.top = p
	d.frame = nil
}

// Visits lists every address loaded, by Navigate or by Goto.
func (d *Driver) Visits() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visits...)
}

// Scripts lists every script passed to ExecuteScript.
func (d *Driver) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scripts...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Active returns the document actions currently apply to.
func (d *Driver) Active() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeLocked()
}

func (d *Driver) activeLocked() *Page {
	if d.frame != nil {
		return d.frame
	}
	return d.top
}

func (d *Driver) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrSessionClosed
	}
	if d.NavigateErr != nil {
		return driver.WrapSession("navigate", d.NavigateErr)
	}
	d.gotoLocked(rawURL, false)
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", driver.ErrSessionClosed
	}
	return d.activeLocked().URL, nil
}

func (d *Driver) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := by.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrSessionClosed
	}
	page := d.activeLocked()
	return d.handles(page, page.elements[by]), nil
}

func (d *Driver) handles(page *Page, els []*Element) []driver.Element {
	out := make([]driver.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &handle{d: d, page: page, el: el})
	}
	return out
}

func (d *Driver) ExecuteScript(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, driver.ErrSessionClosed
	}
	d.scripts = append(d.scripts, script)
	active := d.activeLocked()
	handler := d.ScriptHandler
	d.mu.Unlock()

	var result any
	switch script {
	case driver.ScriptReadyState:
		d.mu.Lock()
		result = active.ReadyState
		d.mu.Unlock()
	case driver.ScriptScrollIntoView:
		if len(args) == 0 {
			return nil, fmt.Errorf("scrollIntoView needs an element argument")
		}
		if h, ok := args[0].(*handle); ok {
			if err := h.live(); err != nil {
				return nil, err
			}
		}
		result = true
	default:
		if handler == nil {
			return json.RawMessage("null"), nil
		}
		var err error
		if result, err = handler(script, args); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (d *Driver) SwitchToFrame(ctx context.Context, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrSessionClosed
	}
	if index < 0 || index >= len(d.top.Frames) {
		return fmt.Errorf("%w: index %d", driver.ErrNoSuchFrame, index)
	}
	d.frame = d.top.Frames[index]
	return nil
}

func (d *Driver) SwitchToDefault(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = nil
	return nil
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// handle is the driver.Element handed out by FindAll.
type handle struct {
	d    *Driver
	page *Page
	el   *Element
}

// liveLocked requires d.mu to be held.
func (h *handle) liveLocked() error {
	if h.d.closed {
		return driver.ErrSessionClosed
	}
	if h.d.activeLocked() != h.page {
		return driver.ErrStaleElement
	}
	return nil
}

func (h *handle) live() error {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	return h.liveLocked()
}

func (h *handle) FindAll(ctx context.Context, by driver.By) ([]driver.Element, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if err := h.liveLocked(); err != nil {
		return nil, err
	}
	return h.d.handles(h.page, h.el.children[by]), nil
}

func (h *handle) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.d.mu.Lock()
	if err := h.liveLocked(); err != nil {
		h.d.mu.Unlock()
		return err
	}
	if h.el.ClickErr != nil {
		h.d.mu.Unlock()
		return h.el.ClickErr
	}
	h.el.Clicks++
	if h.el.Checkable {
		h.el.Checked = !h.el.Checked
	}
	onClick := h.el.OnClick
	h.d.mu.Unlock()

	if onClick != nil {
		return onClick(h.d)
	}
	return nil
}

func (h *handle) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.d.mu.Lock()
	if err := h.liveLocked(); err != nil {
		h.d.mu.Unlock()
		return err
	}
	h.el.Typed = append(h.el.Typed, text)
	parts := strings.Split(text, "\n")
	h.el.Value += parts[0]
	value := h.el.Value
	onEnter := h.el.OnEnter
	h.d.mu.Unlock()

	if len(parts) > 1 && onEnter != nil {
		return onEnter(h.d, value)
	}
	return nil
}

func (h *handle) Clear(ctx context.Context) error {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if err := h.liveLocked(); err != nil {
		return err
	}
	h.el.Value = ""
	return nil
}

func (h *handle) IsDisplayed(ctx context.Context) (bool, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if err := h.liveLocked(); err != nil {
		return false, err
	}
	return !h.el.Hidden, nil
}

func (h *handle) IsSelected(ctx context.Context) (bool, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if err := h.liveLocked(); err != nil {
		return false, err
	}
	return h.el.Checked, nil
}

func (h *handle) Attribute(ctx context.Context, name string) (string, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if err := h.liveLocked(); err != nil {
		return "", err
	}
	if name == "value" {
		return h.el.Value, nil
	}
	return h.el.Attrs[name], nil
}

func (h *handle) Text(ctx context.Context) (string, error) {
	h.d.mu.Lock()
	defer h.d.mu.Unlock()
	if err := h.liveLocked(); err != nil {
		return "", err
	}
	return h.el.Text, nil
}

// normalizeURL sorts query parameters so equivalent addresses compare equal.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = u.Query().Encode()
	return u.String()
}

// Opener hands out drivers built by New and records how many were opened.
type Opener struct {
	mu     sync.Mutex
	New    func() *Driver
	Err    error
	opened []*Driver
}

var _ driver.Opener = (*Opener)(nil)

func (o *Opener) Open(ctx context.Context) (driver.Driver, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, driver.WrapSession("open", o.Err)
	}
	d := o.New()
	o.opened = append(o.opened, d)
	return d, nil
}

// Opened returns the drivers handed out so far.
func (o *Opener) Opened() []*Driver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Driver(nil), o.opened...)
}
