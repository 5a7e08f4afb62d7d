package crawler

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/queue"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/logger"
)

const staticQueueSize = 10000

// depthKey holds a request's crawl depth in its colly context. Values are
// strings because queued requests are serialized.
const depthKey = "depth"

// StaticCrawl fetches server-rendered HTML without a browser and applies the
// same extraction rules as the dynamic crawler. Pages are fetched in FIFO
// order by a single worker. Auth, screenshots and the wait signal are not
// used.
func StaticCrawl(ctx context.Context, opts Options, log logger.Interface) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	log.Info("Starting static crawl", "base_url", opts.BaseURL, "max_depth", opts.MaxDepth, "max_pages", opts.MaxPages)

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent("webprobe"),
	)
	c.SetRequestTimeout(opts.Timeout)

	q, err := queue.New(1, &queue.InMemoryQueueStorage{MaxSize: staticQueueSize})
	if err != nil {
		return nil, err
	}

	res := &Result{}
	queued := make(map[string]bool)

	enqueue := func(rawURL string, depth int) {
		key, err := graph.NormalizeURL(rawURL)
		if err != nil || queued[key] || depth > opts.MaxDepth {
			return
		}
		u, err := url.Parse(rawURL)
		if err != nil {
			return
		}
		queued[key] = true
		reqCtx := colly.NewContext()
		reqCtx.Put(depthKey, strconv.Itoa(depth))
		if err := q.AddRequest(&colly.Request{URL: u, Method: "GET", Ctx: reqCtx}); err != nil {
			log.Warn("Failed to queue URL", "url", rawURL, "error", err)
		}
	}

	c.OnRequest(func(r *colly.Request) {
		if len(res.Nodes) >= opts.MaxPages {
			r.Abort()
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		log.Warn("Failed to crawl page", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		if len(res.Nodes) >= opts.MaxPages {
			return
		}
		pageURL := e.Request.URL.String()
		// After a redirect the URL is the final one; the depth stays with
		// the request.
		if key, err := graph.NormalizeURL(pageURL); err == nil {
			queued[key] = true
		}
		depth, _ := strconv.Atoi(e.Request.Ctx.Get(depthKey))

		node, links := staticPage(e.DOM, pageURL, opts)
		res.Nodes = append(res.Nodes, node)

		seenEdges := make(map[string]bool)
		for _, l := range links {
			edge := graph.Edge{From: node.ID, To: graph.NodeID(l.url), Type: graph.EdgeNavigate, Trigger: l.trigger}
			if !seenEdges[edge.Key()] {
				seenEdges[edge.Key()] = true
				res.Edges = append(res.Edges, edge)
			}
			enqueue(l.url, depth+1)
		}
	})

	enqueue(opts.BaseURL, 0)
	if err := q.Run(c); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	log.Info("Static crawl complete", "pages", len(res.Nodes), "edges", len(res.Edges), "duration", res.Duration)
	return res, nil
}

func staticPage(doc *goquery.Selection, pageURL string, opts Options) (*graph.Node, []link) {
	nodeID := graph.NodeID(pageURL)

	var elements []graph.ElementDescriptor
	for _, role := range driver.Roles {
		count := 0
		doc.Find(driver.RoleSelectors[role]).Each(func(_ int, s *goquery.Selection) {
			if count >= maxElementsPerRole || hiddenNode(s) {
				return
			}
			elements = append(elements, describe(nodeID, role, count, staticInfo(s)))
			count++
		})
	}
	if elements == nil {
		elements = []graph.ElementDescriptor{}
	}

	var forms []graph.FormDescriptor
	doc.Find("form").Each(func(i int, s *goquery.Selection) {
		forms = append(forms, buildForm(nodeID, staticForm(doc, i, s), opts.DeepFormExtraction))
	})
	if forms == nil {
		forms = []graph.FormDescriptor{}
	}

	var raw []rawLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		raw = append(raw, rawLink{
			Href:      s.AttrOr("href", ""),
			Text:      truncate(strings.TrimSpace(s.Text()), 100),
			TestID:    s.AttrOr("data-testid", ""),
			AriaLabel: s.AttrOr("aria-label", ""),
		})
	})

	route := graph.RouteOf(pageURL, opts.BaseURL)
	name := route
	for _, el := range elements {
		if el.Role == "heading" && el.Text != "" {
			name = el.Text
			break
		}
	}
	if name == route {
		if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
			name = title
		}
	}

	now := time.Now().UTC()
	node := &graph.Node{
		ID:       nodeID,
		Type:     graph.NodeRoute,
		URL:      pageURL,
		Route:    route,
		Name:     name,
		Elements: elements,
		Forms:    forms,
		Metadata: graph.NodeMetadata{FirstSeen: now, LastSeen: now, VisitCount: 1},
	}
	return node, buildLinks(raw, pageURL, opts.BaseURL)
}

func staticInfo(s *goquery.Selection) driver.ElementInfo {
	attrs := make(map[string]string)
	if len(s.Nodes) > 0 {
		for _, a := range s.Nodes[0].Attr {
			attrs[a.Key] = a.Val
		}
	}
	tag := goquery.NodeName(s)
	text := strings.TrimSpace(s.Text())
	if text == "" && tag == "input" {
		text = attrs["value"]
	}
	return driver.ElementInfo{Tag: tag, Text: text, Attributes: attrs}
}

func hiddenNode(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	return s.AttrOr("aria-hidden", "") == "true" || strings.EqualFold(s.AttrOr("type", ""), "hidden")
}

func staticForm(doc *goquery.Selection, index int, form *goquery.Selection) rawForm {
	rf := rawForm{
		Index:  index,
		ID:     form.AttrOr("id", ""),
		TestID: form.AttrOr("data-testid", ""),
		Action: form.AttrOr("action", ""),
		Method: strings.ToUpper(form.AttrOr("method", "POST")),
	}

	form.Find("input, textarea, select").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		typ := strings.ToLower(s.AttrOr("type", "text"))
		switch typ {
		case "hidden", "submit", "button", "reset", "image":
			return
		}
		if tag == "select" {
			typ = "select-one"
		}
		_, required := s.Attr("required")
		rf.Fields = append(rf.Fields, rawField{
			Tag:         tag,
			Type:        typ,
			Name:        s.AttrOr("name", ""),
			ID:          s.AttrOr("id", ""),
			Placeholder: s.AttrOr("placeholder", ""),
			Required:    required,
			TestID:      s.AttrOr("data-testid", ""),
			AriaLabel:   s.AttrOr("aria-label", ""),
			Label:       staticLabel(doc, s),
			MinLength:   attrPtr(s, "minlength"),
			MaxLength:   attrPtr(s, "maxlength"),
			Min:         attrPtr(s, "min"),
			Max:         attrPtr(s, "max"),
			Pattern:     attrPtr(s, "pattern"),
			Step:        attrPtr(s, "step"),
		})
	})

	submit := form.Find(`button[type="submit"], input[type="submit"]`).First()
	if submit.Length() == 0 {
		submit = form.Find(`button:not([type="button"])`).First()
	}
	if submit.Length() > 0 {
		text := strings.TrimSpace(submit.Text())
		if text == "" {
			text = submit.AttrOr("value", "")
		}
		rf.Submit = &rawSubmit{
			Tag:    goquery.NodeName(submit),
			Text:   text,
			Type:   submit.AttrOr("type", ""),
			ID:     submit.AttrOr("id", ""),
			TestID: submit.AttrOr("data-testid", ""),
		}
	}
	return rf
}

func staticLabel(doc, field *goquery.Selection) string {
	if id := field.AttrOr("id", ""); id != "" {
		var label string
		doc.Find("label[for]").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if l.AttrOr("for", "") == id {
				label = strings.TrimSpace(l.Text())
				return false
			}
			return true
		})
		if label != "" {
			return label
		}
	}
	return strings.TrimSpace(field.Closest("label").Text())
}

func attrPtr(s *goquery.Selection, name string) *string {
	if v, ok := s.Attr(name); ok {
		return &v
	}
	return nil
}
