package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodOptions configures a Chromium launched through go-rod.
type RodOptions struct {
	Bin        string // browser binary; looked up when empty
	Headless   bool
	Width      int
	Height     int
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
}

// RodBrowser implements Browser over the Chrome DevTools Protocol.
type RodBrowser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     RodOptions
}

// LaunchRod starts a browser and connects to it.
func LaunchRod(ctx context.Context, opts RodOptions) (*RodBrowser, error) {
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 800
	}

	bin := opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	l := launcher.New().Context(ctx).Bin(bin).Headless(opts.Headless)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &RodBrowser{browser: browser, launcher: l, opts: opts}, nil
}

// RodLauncher returns a Launcher that starts a new rod browser per call.
func RodLauncher(opts RodOptions) Launcher {
	return func(ctx context.Context) (Browser, error) {
		return LaunchRod(ctx, opts)
	}
}

// NewPage opens a blank tab.
func (b *RodBrowser) NewPage(ctx context.Context) (Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	// Drop the creation context so the page outlives ctx.
	page = page.Context(context.Background())

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	return &rodPage{page: page}, nil
}

// Close shuts down the browser and removes its temporary profile.
func (b *RodBrowser) Close() error {
	err := b.browser.Close()
	b.launcher.Cleanup()
	return err
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) error {
	page := p.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	switch waitUntil {
	case WaitDOMContentLoaded:
		wait := page.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		wait()
	case WaitLoad:
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("wait load %s: %w", url, err)
		}
	default:
		if err := page.Navigate(url); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if err := page.WaitLoad(); err != nil {
			return fmt.Errorf("wait load %s: %w", url, err)
		}
		// Don't hang on persistent connections (WebSockets, polling).
		p.page.Context(ctx).Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	}
	return nil
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Reload(ctx context.Context) error {
	page := p.page.Context(ctx)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

func (p *rodPage) LocateByRole(ctx context.Context, role string) ([]Element, error) {
	css, ok := RoleSelectors[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	found, err := p.page.Context(ctx).Elements(css)
	if err != nil {
		return nil, fmt.Errorf("locate role %s: %w", role, err)
	}

	out := make([]Element, 0, len(found))
	for _, el := range found {
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *rodPage) Locate(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	page := p.page.Context(ctx).Timeout(timeout)
	defer page.CancelTimeout()

	var (
		el  *rod.Element
		err error
	)
	if tag, text, ok := ParseHasText(selector); ok {
		el, err = page.ElementR(tag, regexp.QuoteMeta(text))
	} else {
		el, err = page.Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, selector, err)
	}
	return &rodElement{el: el.Context(context.Background())}, nil
}

func (p *rodPage) Evaluate(ctx context.Context, js string, out any, args ...any) error {
	res, err := p.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), out); err != nil {
		return fmt.Errorf("decode evaluation result: %w", err)
	}
	return nil
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return data, nil
}

func (p *rodPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			URL:    c.URL,
		})
	}
	if err := p.page.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

const describeScript = `() => {
	const attributes = {};
	for (const attr of Array.from(this.attributes)) {
		attributes[attr.name] = attr.value;
	}
	const text = (this.innerText || this.textContent || this.value || '').trim();
	return { tag: this.tagName.toLowerCase(), text: text.slice(0, 100), attributes };
}`

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (e *rodElement) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	return nil
}

func (e *rodElement) SelectOption(ctx context.Context, value string) error {
	if err := e.el.Context(ctx).Select([]string{value}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("select %q: %w", value, err)
	}
	return nil
}

func (e *rodElement) Check(ctx context.Context) error {
	el := e.el.Context(ctx)
	checked, err := el.Property("checked")
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if checked.Bool() {
		return nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("check: %w", err)
	}
	return nil
}

func (e *rodElement) Hover(ctx context.Context) error {
	if err := e.el.Context(ctx).Hover(); err != nil {
		return fmt.Errorf("hover: %w", err)
	}
	return nil
}

func (e *rodElement) IsVisible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

func (e *rodElement) TextContent(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Bounds(ctx context.Context) (image.Rectangle, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("bounds: %w", err)
	}
	if len(shape.Quads) == 0 {
		return image.Rectangle{}, errors.New("element has no shape")
	}

	quad := shape.Quads[0]
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(quad); i += 2 {
		minX, maxX = math.Min(minX, quad[i]), math.Max(maxX, quad[i])
		minY, maxY = math.Min(minY, quad[i+1]), math.Max(maxY, quad[i+1])
	}
	return image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY))), nil
}

func (e *rodElement) Describe(ctx context.Context) (ElementInfo, error) {
	res, err := e.el.Context(ctx).Eval(describeScript)
	if err != nil {
		return ElementInfo{}, fmt.Errorf("describe: %w", err)
	}
	var info ElementInfo
	if err := json.Unmarshal([]byte(res.Value.JSON("", "")), &info); err != nil {
		return ElementInfo{}, fmt.Errorf("describe: %w", err)
	}
	if info.Attributes == nil {
		info.Attributes = map[string]string{}
	}
	return info, nil
}
