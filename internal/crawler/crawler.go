// Package crawler turns a running web application into graph nodes and edges
// by breadth-first traversal through a page driver.
package crawler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/v0xg/webprobe/internal/capture"
	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/logger"
)

// Options configures a crawl.
type Options struct {
	BaseURL            string
	MaxDepth           int
	MaxPages           int
	Timeout            time.Duration
	WaitUntil          driver.WaitUntil
	Auth               AuthStrategy
	DeepFormExtraction bool
	CaptureScreenshots bool
	ScreenshotDir      string
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.MaxDepth < 0 {
		o.MaxDepth = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.WaitUntil == "" {
		o.WaitUntil = driver.WaitNetworkIdle
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = filepath.Join(".webprobe", "screenshots")
	}
	return o
}

// Result is the output of a crawl.
type Result struct {
	Nodes     []*graph.Node
	Edges     []graph.Edge
	Framework string
	Duration  time.Duration
}

// Crawler performs a single-threaded BFS crawl in one browsing context.
type Crawler struct {
	browser driver.Browser
	log     logger.Interface
}

// New creates a crawler on browser.
func New(browser driver.Browser, log logger.Interface) *Crawler {
	return &Crawler{browser: browser, log: log}
}

type queueItem struct {
	url   string
	depth int
}

// Crawl visits pages in FIFO order starting at BaseURL. It stops when the
// queue empties or MaxPages nodes were produced. Pages that fail to load or
// extract are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	c.log.Info("Starting crawl", "base_url", opts.BaseURL, "max_depth", opts.MaxDepth, "max_pages", opts.MaxPages)

	if opts.Auth != nil {
		if err := c.authenticate(ctx, opts); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	queue := []queueItem{{url: opts.BaseURL, depth: 0}}
	visited := make(map[string]bool)
	queued := make(map[string]bool)

	for len(queue) > 0 && len(res.Nodes) < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := queue[0]
		queue = queue[1:]

		key, err := graph.NormalizeURL(item.url)
		if err != nil {
			c.log.Warn("Skipping invalid URL", "url", item.url, "error", err)
			continue
		}
		if visited[key] || item.depth > opts.MaxDepth {
			continue
		}
		visited[key] = true

		page, err := c.visit(ctx, item, opts, res.Framework == "" && len(res.Nodes) == 0)
		if err != nil {
			c.log.Warn("Failed to crawl page", "url", item.url, "depth", item.depth, "error", err)
			continue
		}
		if page.framework != "" {
			res.Framework = page.framework
		}

		res.Nodes = append(res.Nodes, page.node)
		seenEdges := make(map[string]bool)
		for _, l := range page.links {
			to := graph.NodeID(l.url)
			edge := graph.Edge{From: page.node.ID, To: to, Type: graph.EdgeNavigate, Trigger: l.trigger}
			if !seenEdges[edge.Key()] {
				seenEdges[edge.Key()] = true
				res.Edges = append(res.Edges, edge)
			}

			linkKey, err := graph.NormalizeURL(l.url)
			if err != nil || visited[linkKey] || queued[linkKey] {
				continue
			}
			queued[linkKey] = true
			queue = append(queue, queueItem{url: l.url, depth: item.depth + 1})
		}
	}

	res.Duration = time.Since(start)
	c.log.Info("Crawl complete", "pages", len(res.Nodes), "edges", len(res.Edges), "duration", res.Duration)
	return res, nil
}

func (c *Crawler) authenticate(ctx context.Context, opts Options) error {
	page, err := c.browser.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("auth page: %w", err)
	}
	defer page.Close()

	c.log.Info("Running auth strategy", "strategy", opts.Auth.Name())
	if err := opts.Auth.Apply(ctx, page, opts.BaseURL); err != nil {
		return fmt.Errorf("auth %s: %w", opts.Auth.Name(), err)
	}
	return nil
}

type visitResult struct {
	node      *graph.Node
	links     []link
	framework string
}

func (c *Crawler) visit(ctx context.Context, item queueItem, opts Options, detectFramework bool) (*visitResult, error) {
	c.log.Debug("Crawling", "url", item.url, "depth", item.depth)

	page, err := c.browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	began := time.Now()
	if err := page.Navigate(ctx, item.url, opts.WaitUntil, opts.Timeout); err != nil {
		return nil, err
	}
	elapsed := time.Since(began)

	nodeID := graph.NodeID(item.url)
	elements, err := extractElements(ctx, page, nodeID)
	if err != nil {
		c.log.Debug("Partial element extraction", "url", item.url, "error", err)
	}
	forms, err := extractForms(ctx, page, nodeID, opts.DeepFormExtraction)
	if err != nil {
		c.log.Debug("Form extraction failed", "url", item.url, "error", err)
	}
	if elements == nil {
		elements = []graph.ElementDescriptor{}
	}
	if forms == nil {
		forms = []graph.FormDescriptor{}
	}

	pageURL := page.URL()
	if pageURL == "" {
		pageURL = item.url
	}
	links, err := extractLinks(ctx, page, pageURL, opts.BaseURL)
	if err != nil {
		c.log.Debug("Link extraction failed", "url", item.url, "error", err)
	}

	now := time.Now().UTC()
	route := graph.RouteOf(item.url, opts.BaseURL)
	node := &graph.Node{
		ID:       nodeID,
		Type:     graph.NodeRoute,
		URL:      item.url,
		Route:    route,
		Name:     pageName(ctx, page, elements, route),
		Elements: elements,
		Forms:    forms,
		Metadata: graph.NodeMetadata{
			FirstSeen:    now,
			LastSeen:     now,
			VisitCount:   1,
			ResponseTime: elapsed.Milliseconds(),
		},
	}

	if opts.CaptureScreenshots {
		node.Metadata.Screenshot = c.screenshot(ctx, page, nodeID, opts.ScreenshotDir)
	}

	res := &visitResult{node: node, links: links}
	if detectFramework {
		var framework string
		if err := page.Evaluate(ctx, FrameworkScript, &framework); err == nil {
			res.framework = framework
		}
	}
	return res, nil
}

// screenshot stores a best-effort thumbnail and returns its path.
func (c *Crawler) screenshot(ctx context.Context, page driver.Page, nodeID, dir string) string {
	data, err := page.Screenshot(ctx)
	if err != nil {
		c.log.Debug("Screenshot failed", "node", nodeID, "error", err)
		return ""
	}
	thumb, err := capture.Thumbnail(data, capture.DefaultThumbnailWidth)
	if err != nil {
		c.log.Debug("Thumbnail failed", "node", nodeID, "error", err)
		return ""
	}
	path, err := capture.WriteFile(dir, nodeID+".png", thumb)
	if err != nil {
		c.log.Debug("Screenshot write failed", "node", nodeID, "error", err)
		return ""
	}
	return path
}

func pageName(ctx context.Context, page driver.Page, elements []graph.ElementDescriptor, route string) string {
	for _, el := range elements {
		if el.Role == "heading" && el.Text != "" {
			return el.Text
		}
	}
	var title string
	if err := page.Evaluate(ctx, TitleScript, &title); err == nil && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	return route
}
