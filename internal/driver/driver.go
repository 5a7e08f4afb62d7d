// Package driver defines the page-driver capabilities the crawler and runner
// consume, and a go-rod implementation of them.
package driver

import (
	"context"
	"errors"
	"image"
	"time"
)

// ErrNotFound is returned when a selector matches no element.
var ErrNotFound = errors.New("element not found")

// WaitUntil is the page stability signal awaited after navigation.
type WaitUntil string

const (
	WaitNetworkIdle      WaitUntil = "networkidle"
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
)

// Roles is the role vocabulary extracted from every crawled page.
var Roles = []string{"button", "link", "textbox", "heading", "img"}

// RoleSelectors maps each role to the CSS that finds its native and ARIA
// forms.
var RoleSelectors = map[string]string{
	"button": `button, [role="button"], input[type="submit"], input[type="button"]`,
	"link":   `a[href], [role="link"]`,
	"textbox": `input:not([type]), input[type="text"], input[type="email"], input[type="password"], ` +
		`input[type="search"], input[type="tel"], input[type="url"], input[type="number"], textarea, [role="textbox"]`,
	"heading": `h1, h2, h3, h4, h5, h6, [role="heading"]`,
	"img":     `img, [role="img"]`,
}

// Browser opens pages that share one browsing context (cookies, storage).
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts a new independent browser.
type Launcher func(ctx context.Context) (Browser, error)

// Page is a single tab.
type Page interface {
	Navigate(ctx context.Context, url string, waitUntil WaitUntil, timeout time.Duration) error
	URL() string
	Reload(ctx context.Context) error
	// LocateByRole returns the visible elements for a role of Roles, in
	// document order.
	LocateByRole(ctx context.Context, role string) ([]Element, error)
	// Locate waits up to timeout for selector to match. Besides CSS it
	// accepts tag:has-text("text").
	Locate(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Evaluate runs a JavaScript function expression and decodes its JSON
	// result into out, which may be nil.
	Evaluate(ctx context.Context, js string, out any, args ...any) error
	Screenshot(ctx context.Context) ([]byte, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Close() error
}

// Element is a located DOM element.
type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	SelectOption(ctx context.Context, value string) error
	Check(ctx context.Context) error
	Hover(ctx context.Context) error
	IsVisible(ctx context.Context) (bool, error)
	TextContent(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Bounds returns the element's box in viewport pixels.
	Bounds(ctx context.Context) (image.Rectangle, error)
	Describe(ctx context.Context) (ElementInfo, error)
}

// ElementInfo is the static description of an element.
type ElementInfo struct {
	Tag        string            `json:"tag"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
}

// Cookie is injected into the browsing context.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
	URL    string
}
