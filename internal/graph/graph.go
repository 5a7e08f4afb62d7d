// Package graph holds the crawled structural model of an application: nodes
// (routes), edges (transitions) and the element and form descriptors found on
// each node. All traversal is by id lookup so cycles need no special casing.
package graph

import "time"

// NodeType classifies a node.
type NodeType string

const (
	NodeRoute     NodeType = "route"
	NodeComponent NodeType = "component"
	NodeModal     NodeType = "modal"
	NodeFlow      NodeType = "flow"
)

// EdgeType classifies a transition between two nodes.
type EdgeType string

const (
	EdgeNavigate EdgeType = "navigate"
	EdgeSubmit   EdgeType = "submit"
	EdgeModal    EdgeType = "modal"
	EdgeTab      EdgeType = "tab"
)

// SelectorType names the heuristic that produced a primary selector.
type SelectorType string

const (
	SelectorTestID SelectorType = "data-testid"
	SelectorLabel  SelectorType = "label"
	SelectorRole   SelectorType = "role"
	SelectorCSS    SelectorType = "css"
	SelectorXPath  SelectorType = "xpath"
)

// CrawlMethod records how a graph was produced.
type CrawlMethod string

const (
	CrawlStatic  CrawlMethod = "static"
	CrawlDynamic CrawlMethod = "dynamic"
	CrawlHybrid  CrawlMethod = "hybrid"
)

// Graph is the crawled model of an application.
type Graph struct {
	Version    string               `json:"version"`
	AppName    string               `json:"appName"`
	BaseURL    string               `json:"baseUrl"`
	Timestamp  time.Time            `json:"timestamp"`
	Framework  string               `json:"framework,omitempty"`
	Nodes      []*Node              `json:"nodes"`
	Edges      []Edge               `json:"edges"`
	Signatures map[string]Signature `json:"signatures"`
	Metadata   Metadata             `json:"metadata"`
}

// Node is a page (or page state) of the application.
type Node struct {
	ID       string              `json:"id"`
	Type     NodeType            `json:"type"`
	URL      string              `json:"url,omitempty"`
	Route    string              `json:"route,omitempty"`
	Name     string              `json:"name"`
	Elements []ElementDescriptor `json:"elements"`
	Forms    []FormDescriptor    `json:"forms"`
	Metadata NodeMetadata        `json:"metadata"`
}

// Edge is a directed transition triggered by an element interaction.
type Edge struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Type     EdgeType          `json:"type"`
	Trigger  ElementDescriptor `json:"trigger"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Key identifies an edge for de-duplication.
func (e Edge) Key() string {
	return e.From + "->" + e.To + "->" + string(e.Type)
}

// ElementDescriptor structurally describes an interactive or semantic element.
type ElementDescriptor struct {
	ID          string            `json:"id"`
	Role        string            `json:"role"`
	Name        string            `json:"name,omitempty"`
	Selector    SelectorStrategy  `json:"selector"`
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	Text        string            `json:"text,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Confidence  float64           `json:"confidence"`
}

// SelectorStrategy is a primary selector with fallbacks and a stability score.
type SelectorStrategy struct {
	Primary   string       `json:"primary"`
	Fallbacks []string     `json:"fallbacks"`
	Stability float64      `json:"stability"`
	Type      SelectorType `json:"type"`
}

// FormDescriptor describes a form and its fields in DOM order.
type FormDescriptor struct {
	ID              string             `json:"id"`
	Selector        SelectorStrategy   `json:"selector"`
	Fields          []FormField        `json:"fields"`
	SubmitButton    *ElementDescriptor `json:"submitButton,omitempty"`
	ValidationRules []ValidationRule   `json:"validationRules"`
	Method          string             `json:"method"`
	Action          string             `json:"action"`
}

// FormField is a single control of a form.
type FormField struct {
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	Selector        SelectorStrategy  `json:"selector"`
	Required        bool              `json:"required"`
	Placeholder     string            `json:"placeholder,omitempty"`
	Label           string            `json:"label,omitempty"`
	Constraints     *FieldConstraints `json:"constraints"`
	ValidationHints []string          `json:"validationHints"`

	legacy *legacyConstraints
}

// FieldConstraints are native validation constraints of a field.
type FieldConstraints struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Step      string   `json:"step,omitempty"`
}

// ValidationRule is an inferred validation rule for a field.
type ValidationRule struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message,omitempty"`
}

// Signature fingerprints a node's DOM at crawl time.
type Signature struct {
	DOMHash    string    `json:"domHash"`
	Screenshot string    `json:"screenshot,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NodeMetadata records visit statistics of a node.
type NodeMetadata struct {
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	VisitCount   int       `json:"visitCount"`
	ResponseTime int64     `json:"responseTime,omitempty"` // milliseconds
	Screenshot   string    `json:"screenshot,omitempty"`
}

// Metadata summarizes a graph.
type Metadata struct {
	TotalNodes    int         `json:"totalNodes"`
	TotalEdges    int         `json:"totalEdges"`
	TotalElements int         `json:"totalElements"`
	TotalForms    int         `json:"totalForms"`
	CrawlDuration int64       `json:"crawlDuration"` // milliseconds
	CrawlMethod   CrawlMethod `json:"crawlMethod"`
}

// RouteNodes returns the route nodes in graph order.
func (g *Graph) RouteNodes() []*Node {
	routes := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Type == NodeRoute {
			routes = append(routes, n)
		}
	}
	return routes
}

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Adjacency returns outgoing edges keyed by source node id, in edge order.
func (g *Graph) Adjacency() map[string][]Edge {
	out := make(map[string][]Edge, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e)
	}
	return out
}

// URLFor returns the absolute URL of a node.
func (g *Graph) URLFor(n *Node) string {
	if n.URL != "" {
		return n.URL
	}
	return trimTrailingSlash(g.BaseURL) + n.RouteOrRoot()
}

// RouteOrRoot returns the node route, or "/" when unset.
func (n *Node) RouteOrRoot() string {
	if n.Route == "" {
		return "/"
	}
	return n.Route
}

// ElementsOfType returns the elements with the given type.
func (n *Node) ElementsOfType(typ string) []ElementDescriptor {
	var out []ElementDescriptor
	for _, e := range n.Elements {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ElementsWithRole returns the elements with the given role.
func (n *Node) ElementsWithRole(role string) []ElementDescriptor {
	var out []ElementDescriptor
	for _, e := range n.Elements {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}

// Identifier returns the element id, falling back to its primary selector.
func (e ElementDescriptor) Identifier() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Selector.Primary
}

// Identifier returns the field's primary selector, falling back to its name.
func (f FormField) Identifier() string {
	if f.Selector.Primary != "" {
		return f.Selector.Primary
	}
	return f.Name
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
