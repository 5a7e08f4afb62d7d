package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/v0xg/webprobe/internal/config"
	"github.com/v0xg/webprobe/internal/driver"
)

// ErrLoginTimeout is returned when a form login never reaches its success URL.
var ErrLoginTimeout = errors.New("login did not complete before timeout")

const (
	defaultAuthTimeout = 10 * time.Second
	loginPollInterval  = 200 * time.Millisecond
)

// AuthStrategy establishes a session in the browsing context before crawling.
// It runs once on a throwaway page; later pages inherit cookies and storage.
type AuthStrategy interface {
	Name() string
	Apply(ctx context.Context, page driver.Page, baseURL string) error
}

// CookieAuth injects cookies.
type CookieAuth struct {
	Cookies []driver.Cookie
}

// Name implements AuthStrategy.
func (a *CookieAuth) Name() string { return "cookie" }

// Apply implements AuthStrategy.
func (a *CookieAuth) Apply(ctx context.Context, page driver.Page, baseURL string) error {
	cookies := make([]driver.Cookie, len(a.Cookies))
	for i, c := range a.Cookies {
		if c.Domain == "" && c.URL == "" {
			c.URL = baseURL
		}
		cookies[i] = c
	}
	return page.SetCookies(ctx, cookies)
}

// StorageAuth writes localStorage entries on the application origin.
type StorageAuth struct {
	Items   map[string]string
	Timeout time.Duration
}

const storageScript = `(key, value) => localStorage.setItem(key, value)`

// Name implements AuthStrategy.
func (a *StorageAuth) Name() string { return "storage" }

// Apply implements AuthStrategy.
func (a *StorageAuth) Apply(ctx context.Context, page driver.Page, baseURL string) error {
	if err := page.Navigate(ctx, baseURL, driver.WaitDOMContentLoaded, timeoutOr(a.Timeout)); err != nil {
		return err
	}
	keys := make([]string, 0, len(a.Items))
	for k := range a.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := page.Evaluate(ctx, storageScript, nil, k, a.Items[k]); err != nil {
			return fmt.Errorf("set storage %s: %w", k, err)
		}
	}
	return nil
}

// FormLoginAuth signs in through a login form.
type FormLoginAuth struct {
	LoginURL         string
	Username         string
	Password         string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	// SuccessURL, when set, must appear in the page URL before Timeout.
	SuccessURL string
	Timeout    time.Duration
}

// Name implements AuthStrategy.
func (a *FormLoginAuth) Name() string { return "form" }

// Apply implements AuthStrategy.
func (a *FormLoginAuth) Apply(ctx context.Context, page driver.Page, baseURL string) error {
	timeout := timeoutOr(a.Timeout)
	loginURL := a.LoginURL
	if loginURL == "" {
		loginURL = baseURL
	}
	if err := page.Navigate(ctx, loginURL, driver.WaitDOMContentLoaded, timeout); err != nil {
		return err
	}

	steps := []struct {
		selector string
		value    string
		submit   bool
	}{
		{a.UsernameSelector, a.Username, false},
		{a.PasswordSelector, a.Password, false},
		{a.SubmitSelector, "", true},
	}
	for _, s := range steps {
		el, err := page.Locate(ctx, s.selector, timeout)
		if err != nil {
			return fmt.Errorf("login form: %w", err)
		}
		if s.submit {
			err = el.Click(ctx)
		} else {
			err = el.Fill(ctx, s.value)
		}
		if err != nil {
			return fmt.Errorf("login form %s: %w", s.selector, err)
		}
	}

	return a.waitForLogin(ctx, page, loginURL, timeout)
}

func (a *FormLoginAuth) waitForLogin(ctx context.Context, page driver.Page, loginURL string, timeout time.Duration) error {
	done := func() bool {
		current := page.URL()
		if a.SuccessURL != "" {
			return strings.Contains(current, a.SuccessURL)
		}
		return current != loginURL
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()

	for !done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if a.SuccessURL != "" {
				return fmt.Errorf("%w: waiting for %s", ErrLoginTimeout, a.SuccessURL)
			}
			// Without a success URL a login that stays on the page is accepted.
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// ScriptAuth runs custom setup: a Go hook when set, otherwise a JavaScript
// function expression evaluated on the application origin.
type ScriptAuth struct {
	Script  string
	Func    func(ctx context.Context, page driver.Page) error
	Timeout time.Duration
}

// Name implements AuthStrategy.
func (a *ScriptAuth) Name() string { return "script" }

// Apply implements AuthStrategy.
func (a *ScriptAuth) Apply(ctx context.Context, page driver.Page, baseURL string) error {
	if err := page.Navigate(ctx, baseURL, driver.WaitDOMContentLoaded, timeoutOr(a.Timeout)); err != nil {
		return err
	}
	if a.Func != nil {
		return a.Func(ctx, page)
	}
	if err := page.Evaluate(ctx, a.Script, nil); err != nil {
		return fmt.Errorf("auth script: %w", err)
	}
	return nil
}

// AuthFromConfig builds the configured strategy. It returns nil for "none".
// A script value naming an existing file is read from disk.
func AuthFromConfig(cfg config.AuthConfig) (AuthStrategy, error) {
	switch cfg.Strategy {
	case "", "none":
		return nil, nil
	case "cookie":
		cookies := make([]driver.Cookie, 0, len(cfg.Cookies))
		for _, c := range cfg.Cookies {
			cookies = append(cookies, driver.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
		}
		return &CookieAuth{Cookies: cookies}, nil
	case "storage":
		return &StorageAuth{Items: cfg.Storage, Timeout: cfg.Timeout}, nil
	case "form":
		return &FormLoginAuth{
			LoginURL:         cfg.LoginURL,
			Username:         cfg.Username,
			Password:         cfg.Password,
			UsernameSelector: cfg.UsernameSelector,
			PasswordSelector: cfg.PasswordSelector,
			SubmitSelector:   cfg.SubmitSelector,
			SuccessURL:       cfg.SuccessURL,
			Timeout:          cfg.Timeout,
		}, nil
	case "script":
		script := cfg.Script
		if data, err := os.ReadFile(script); err == nil {
			script = string(data)
		}
		if strings.TrimSpace(script) == "" {
			return nil, errors.New("auth script is empty")
		}
		return &ScriptAuth{Script: script, Timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown auth strategy %q", cfg.Strategy)
	}
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultAuthTimeout
	}
	return d
}
