package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/v0xg/webprobe/internal/crawler"
	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
)

func newMapCmd(a *app) *cobra.Command {
	var (
		url      string
		method   string
		output   string
		maxDepth int
		maxPages int
	)

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Crawl the application and write its structural graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if url != "" {
				cfg.BaseURL = url
			}
			if method != "" {
				cfg.Mapping.Method = method
			}
			if maxDepth >= 0 {
				cfg.Mapping.MaxDepth = maxDepth
			}
			if maxPages > 0 {
				cfg.Mapping.MaxPages = maxPages
			}
			if output == "" {
				output = filepath.Join(cfg.OutputDir, "graph.json")
			}

			fmt.Printf("→ Mapping %s (%s)... ", cfg.BaseURL, cfg.Mapping.Method)
			g, err := a.crawl(cmd.Context())
			if err != nil {
				fmt.Println("failed")
				return err
			}
			fmt.Printf("done (%d routes, %d edges)\n", len(g.RouteNodes()), len(g.Edges))

			if err := graph.Save(output, g); err != nil {
				return err
			}
			printGraph(g)
			fmt.Printf("✓ Graph saved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Base URL (overrides config)")
	cmd.Flags().StringVar(&method, "method", "", "Crawl method: static, dynamic, hybrid")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Graph file (default: <output_dir>/graph.json)")
	cmd.Flags().IntVar(&maxDepth, "depth", -1, "Maximum link depth")
	cmd.Flags().IntVar(&maxPages, "pages", 0, "Maximum pages to visit")
	return cmd
}

// crawl maps the configured application. Hybrid mode merges a static crawl
// into the dynamic one.
func (a *app) crawl(ctx context.Context) (*graph.Graph, error) {
	cfg := a.cfg
	opts := crawler.Options{
		BaseURL:            cfg.BaseURL,
		MaxDepth:           cfg.Mapping.MaxDepth,
		MaxPages:           cfg.Mapping.MaxPages,
		Timeout:            cfg.Mapping.Timeout,
		WaitUntil:          driver.WaitUntil(cfg.Mapping.WaitUntil),
		DeepFormExtraction: cfg.Mapping.DeepFormExtraction,
		CaptureScreenshots: cfg.Mapping.CaptureScreenshots,
		ScreenshotDir:      filepath.Join(cfg.OutputDir, "screenshots"),
	}

	build := func(res *crawler.Result, method graph.CrawlMethod) *graph.Graph {
		framework := cfg.Framework
		if framework == "" {
			framework = res.Framework
		}
		return graph.Build(cfg.AppName, cfg.BaseURL, res.Nodes, res.Edges, framework, res.Duration, method)
	}

	switch graph.CrawlMethod(cfg.Mapping.Method) {
	case graph.CrawlStatic:
		res, err := crawler.StaticCrawl(ctx, opts, a.log)
		if err != nil {
			return nil, fmt.Errorf("static crawl failed: %w", err)
		}
		return build(res, graph.CrawlStatic), nil

	case graph.CrawlHybrid:
		static, err := crawler.StaticCrawl(ctx, opts, a.log)
		if err != nil {
			return nil, fmt.Errorf("static crawl failed: %w", err)
		}
		dynamic, err := a.dynamicCrawl(ctx, opts)
		if err != nil {
			return nil, err
		}
		return graph.Merge(build(dynamic, graph.CrawlHybrid), build(static, graph.CrawlStatic))

	default:
		res, err := a.dynamicCrawl(ctx, opts)
		if err != nil {
			return nil, err
		}
		return build(res, graph.CrawlDynamic), nil
	}
}

func (a *app) dynamicCrawl(ctx context.Context, opts crawler.Options) (*crawler.Result, error) {
	auth, err := crawler.AuthFromConfig(a.cfg.Auth)
	if err != nil {
		return nil, err
	}
	opts.Auth = auth

	browser, err := driver.LaunchRod(ctx, driver.RodOptions{
		Bin:      a.cfg.Execution.BrowserBin,
		Headless: a.cfg.Execution.Headless,
	})
	if err != nil {
		return nil, err
	}
	defer browser.Close()

	start := time.Now()
	res, err := crawler.New(browser, a.log.With("component", "crawler")).Crawl(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("crawl failed: %w", err)
	}
	a.log.Debug("Dynamic crawl finished", "pages", len(res.Nodes), "elapsed", time.Since(start))
	return res, nil
}
