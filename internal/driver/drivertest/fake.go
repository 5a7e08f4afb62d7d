// Package drivertest provides an in-memory driver.Browser for tests.
package drivertest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/v0xg/webprobe/internal/driver"
)

// Site is a fake application. Pages are keyed by URL with the fragment and
// any trailing slash removed.
type Site struct {
	mu sync.Mutex

	Pages map[string]*Page

	Cookies   []driver.Cookie
	Evaluated []Evaluation
	Visits    []string
	Browsers  int
	Closed    int
}

// Evaluation records a script run through Page.Evaluate.
type Evaluation struct {
	URL    string
	Script string
	Args   []any
}

// Page is a fake document.
type Page struct {
	Title string
	// Roles lists the elements returned by LocateByRole.
	Roles map[string][]*Element
	// Selectors resolves Locate calls.
	Selectors map[string]*Element
	// Eval returns canned results for exact scripts. Unknown scripts
	// evaluate to nothing.
	Eval map[string]any
	// NavigateErr fails navigation to this page.
	NavigateErr error
}

// Element is a fake DOM element. Clicking an element with Href navigates
// the tab.
type Element struct {
	Tag        string
	Text       string
	Attributes map[string]string
	Href       string
	Hidden     bool

	// Box is returned by Bounds; an empty box is an error.
	Box image.Rectangle

	// FailClicks makes the first n clicks fail.
	FailClicks int
	ClickErr   error

	Clicks   int
	Value    string
	Selected string
	Checked  bool
	Hovered  bool
}

// NewSite returns an empty site.
func NewSite() *Site {
	return &Site{Pages: map[string]*Page{}}
}

// Add registers a page at rawURL.
func (s *Site) Add(rawURL string, p *Page) *Page {
	if p.Roles == nil {
		p.Roles = map[string][]*Element{}
	}
	if p.Selectors == nil {
		p.Selectors = map[string]*Element{}
	}
	s.Pages[key(rawURL)] = p
	return p
}

// Browser returns a browser bound to the site.
func (s *Site) Browser() driver.Browser {
	s.mu.Lock()
	s.Browsers++
	s.mu.Unlock()
	return &browser{site: s}
}

// Launcher returns a driver.Launcher producing browsers on the site.
func (s *Site) Launcher() driver.Launcher {
	return func(context.Context) (driver.Browser, error) {
		return s.Browser(), nil
	}
}

// VisitLog returns the navigations performed so far.
func (s *Site) VisitLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Visits...)
}

func key(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		p = "/"
	}
	u.Path = p
	return u.String()
}

type browser struct {
	site *Site
}

func (b *browser) NewPage(context.Context) (driver.Page, error) {
	return &tab{site: b.site}, nil
}

func (b *browser) Close() error {
	b.site.mu.Lock()
	b.site.Closed++
	b.site.mu.Unlock()
	return nil
}

type tab struct {
	site    *Site
	url     string
	current *Page
}

func (t *tab) Navigate(ctx context.Context, rawURL string, _ driver.WaitUntil, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.site.mu.Lock()
	defer t.site.mu.Unlock()
	return t.navigateLocked(rawURL)
}

func (t *tab) navigateLocked(rawURL string) error {
	t.site.Visits = append(t.site.Visits, rawURL)
	p, ok := t.site.Pages[key(rawURL)]
	if !ok {
		return fmt.Errorf("navigation failed: net::ERR_HTTP_RESPONSE_CODE_FAILURE %s", rawURL)
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	t.url = rawURL
	t.current = p
	return nil
}

func (t *tab) URL() string {
	t.site.mu.Lock()
	defer t.site.mu.Unlock()
	return t.url
}

func (t *tab) Reload(ctx context.Context) error {
	if t.url == "" {
		return nil
	}
	return t.Navigate(ctx, t.url, driver.WaitLoad, 0)
}

func (t *tab) LocateByRole(_ context.Context, role string) ([]driver.Element, error) {
	t.site.mu.Lock()
	defer t.site.mu.Unlock()
	if t.current == nil {
		return nil, errors.New("no document")
	}
	var out []driver.Element
	for _, el := range t.current.Roles[role] {
		if el.Hidden {
			continue
		}
		out = append(out, &handle{tab: t, el: el})
	}
	return out, nil
}

func (t *tab) Locate(_ context.Context, selector string, _ time.Duration) (driver.Element, error) {
	t.site.mu.Lock()
	defer t.site.mu.Unlock()
	if t.current == nil {
		return nil, errors.New("no document")
	}
	el, ok := t.current.Selectors[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrNotFound, selector)
	}
	return &handle{tab: t, el: el}, nil
}

func (t *tab) Evaluate(_ context.Context, js string, out any, args ...any) error {
	t.site.mu.Lock()
	defer t.site.mu.Unlock()
	t.site.Evaluated = append(t.site.Evaluated, Evaluation{URL: t.url, Script: js, Args: args})
	if t.current == nil || out == nil {
		return nil
	}
	result, ok := t.current.Eval[js]
	if !ok {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (t *tab) Screenshot(context.Context) ([]byte, error) {
	return pngPixel, nil
}

func (t *tab) SetCookies(_ context.Context, cookies []driver.Cookie) error {
	t.site.mu.Lock()
	defer t.site.mu.Unlock()
	t.site.Cookies = append(t.site.Cookies, cookies...)
	return nil
}

func (t *tab) Close() error { return nil }

type handle struct {
	tab *tab
	el  *Element
}

func (h *handle) Click(context.Context) error {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	if h.el.ClickErr != nil {
		return h.el.ClickErr
	}
	if h.el.FailClicks > 0 {
		h.el.FailClicks--
		return errors.New("element is covered by another element (overlay)")
	}
	h.el.Clicks++
	if h.el.Href != "" {
		next, err := url.Parse(h.tab.url)
		if err != nil {
			return err
		}
		ref, err := url.Parse(h.el.Href)
		if err != nil {
			return err
		}
		return h.tab.navigateLocked(next.ResolveReference(ref).String())
	}
	return nil
}

func (h *handle) Fill(_ context.Context, value string) error {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	h.el.Value = value
	return nil
}

func (h *handle) SelectOption(_ context.Context, value string) error {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	h.el.Selected = value
	return nil
}

func (h *handle) Check(context.Context) error {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	h.el.Checked = true
	return nil
}

func (h *handle) Hover(context.Context) error {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	h.el.Hovered = true
	return nil
}

func (h *handle) IsVisible(context.Context) (bool, error) {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	return !h.el.Hidden, nil
}

func (h *handle) TextContent(context.Context) (string, error) {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	return h.el.Text, nil
}

func (h *handle) Attribute(_ context.Context, name string) (string, bool, error) {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	if name == "value" && h.el.Value != "" {
		return h.el.Value, true, nil
	}
	v, ok := h.el.Attributes[name]
	return v, ok, nil
}

func (h *handle) Bounds(context.Context) (image.Rectangle, error) {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	if h.el.Box.Empty() {
		return image.Rectangle{}, errors.New("element has no shape")
	}
	return h.el.Box, nil
}

func (h *handle) Describe(context.Context) (driver.ElementInfo, error) {
	h.tab.site.mu.Lock()
	defer h.tab.site.mu.Unlock()
	attrs := make(map[string]string, len(h.el.Attributes))
	for k, v := range h.el.Attributes {
		attrs[k] = v
	}
	return driver.ElementInfo{Tag: h.el.Tag, Text: h.el.Text, Attributes: attrs}, nil
}

var pngPixel = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}()
