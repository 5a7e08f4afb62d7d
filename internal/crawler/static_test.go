package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/logger"
)

var staticPages = map[string]string{
	"/": `<html><head><title>Home</title></head><body>
		<h1>Storefront</h1>
		<a href="/products" data-testid="nav-products">Products</a>
		<a href="/contact">Contact</a>
		<a href="/missing">Broken</a>
		<a href="https://elsewhere.test/">Elsewhere</a>
		<button aria-label="Open menu"></button>
		<button hidden>Secret</button>
	</body></html>`,
	"/products": `<html><head><title>Products</title></head><body>
		<a href="/">Home</a><a href="/products/1">First</a>
	</body></html>`,
	"/products/1": `<html><body><h2>Widget</h2></body></html>`,
	"/contact": `<html><head><title>Contact us</title></head><body>
		<form id="contact" method="post" action="/send">
			<label for="email">Email</label>
			<input id="email" name="email" type="email" required maxlength="60">
			<label>Message <textarea name="message" minlength="10"></textarea></label>
			<input type="hidden" name="csrf" value="x">
			<select name="topic"><option>Sales</option></select>
			<button type="submit">Send</button>
		</form>
	</body></html>`,
}

func staticServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := staticPages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func staticCrawl(t *testing.T, opts Options) *Result {
	t.Helper()
	res, err := StaticCrawl(context.Background(), opts, logger.NewNop())
	require.NoError(t, err)
	return res
}

func TestStaticCrawl(t *testing.T) {
	srv := staticServer(t)
	res := staticCrawl(t, Options{BaseURL: srv.URL + "/", MaxDepth: 3, MaxPages: 10})

	assert.Equal(t, []string{"/", "/products", "/contact", "/products/1"}, routes(res.Nodes))

	root := res.Nodes[0]
	assert.Equal(t, "Storefront", root.Name)
	buttons := root.ElementsWithRole("button")
	require.Len(t, buttons, 1)
	assert.Equal(t, `[aria-label="Open menu"]`, buttons[0].Selector.Primary)

	g := graph.Build("shop", srv.URL, res.Nodes, res.Edges, "", res.Duration, graph.CrawlStatic)
	adj := g.Adjacency()
	assert.Len(t, adj[root.ID], 2, "external and unreachable targets are dropped")
	for _, e := range adj[root.ID] {
		if e.To == graph.NodeID(srv.URL+"/products") {
			assert.Equal(t, `[data-testid="nav-products"]`, e.Trigger.Selector.Primary)
		}
	}
}

func TestStaticCrawl_Forms(t *testing.T) {
	srv := staticServer(t)
	res := staticCrawl(t, Options{BaseURL: srv.URL + "/contact", MaxDepth: 0, DeepFormExtraction: true})
	require.Len(t, res.Nodes, 1)

	node := res.Nodes[0]
	assert.Equal(t, "Contact us", node.Name)
	require.Len(t, node.Forms, 1)

	form := node.Forms[0]
	assert.Equal(t, "#contact", form.Selector.Primary)
	assert.Equal(t, "POST", form.Method)
	require.Len(t, form.Fields, 3)

	email := form.Fields[0]
	assert.Equal(t, "email", email.Type)
	assert.Equal(t, "Email", email.Label)
	assert.True(t, email.Required)
	require.NotNil(t, email.Constraints.MaxLength)
	assert.Equal(t, 60, *email.Constraints.MaxLength)

	message := form.Fields[1]
	assert.Equal(t, "text", message.Type)
	assert.Equal(t, `textarea[name="message"]`, message.Selector.Primary)
	assert.Contains(t, message.Label, "Message")
	assert.Equal(t, 10, *message.Constraints.MinLength)

	assert.Equal(t, "select", form.Fields[2].Type)
	require.NotNil(t, form.SubmitButton)
	assert.Equal(t, "Send", form.SubmitButton.Text)
}

func TestStaticCrawl_MaxPages(t *testing.T) {
	srv := staticServer(t)
	res := staticCrawl(t, Options{BaseURL: srv.URL + "/", MaxDepth: 3, MaxPages: 2})
	assert.Len(t, res.Nodes, 2)
}

func TestStaticCrawl_RedirectKeepsDepth(t *testing.T) {
	pages := map[string]string{
		"/":        `<html><body><h1>Home</h1><a href="/start">Start</a></body></html>`,
		"/landing": `<html><body><h1>Landing</h1><a href="/deep">Deep</a></body></html>`,
		"/deep":    `<html><body><h1>Deep</h1><a href="/deeper">Deeper</a></body></html>`,
		"/deeper":  `<html><body><h1>Deeper</h1></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/landing", http.StatusFound)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	res := staticCrawl(t, Options{BaseURL: srv.URL + "/", MaxDepth: 2, MaxPages: 10})
	assert.Equal(t, []string{"/", "/landing", "/deep"}, routes(res.Nodes))
}
