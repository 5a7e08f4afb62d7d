package graph

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
)

var errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")

// NormalizeURL returns a canonical form of rawURL: lowercase scheme and host,
// no fragment, sorted query and no trailing slash (root stays "/").
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errMissingSchemeOrHost
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = sortedQuery(u.Query())
	u.Path = normalizePath(u.Path)
	u.RawPath = ""

	return u.String(), nil
}

// NodeID derives a node id from the normalized path and query of rawURL.
// Ids are stable across runs while the path does not change.
func NodeID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return HashString(rawURL)
	}
	key := normalizePath(u.Path)
	if q := sortedQuery(u.Query()); q != "" {
		key += "?" + q
	}
	return HashString(key)
}

// RouteOf returns the path+query of rawURL relative to baseURL, or "/".
func RouteOf(rawURL, baseURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	route := normalizePath(u.Path)
	if base, err := url.Parse(baseURL); err == nil {
		basePath := normalizePath(base.Path)
		if basePath != "/" && (route == basePath || strings.HasPrefix(route, basePath+"/")) {
			route = normalizePath(strings.TrimPrefix(route, basePath))
		}
	}
	if q := sortedQuery(u.Query()); q != "" {
		route += "?" + q
	}
	return route
}

// SameOrigin reports whether a and b share scheme and host.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// Resolve resolves href against base.
func Resolve(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", href, err)
	}
	r, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", href, err)
	}
	return b.ResolveReference(r).String(), nil
}

func sortedQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "/"
	}
	return strings.TrimRight(cleaned, "/")
}
