// Package coverage measures how much of a crawled graph a test plan
// exercises.
package coverage

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

// Dimension names a coverage dimension.
type Dimension string

const (
	Routes     Dimension = "routes"
	Elements   Dimension = "elements"
	Forms      Dimension = "forms"
	Assertions Dimension = "assertions"
	Flows      Dimension = "flows"
)

// Ratio is the covered share of a countable dimension.
type Ratio struct {
	Total      int `json:"total"`
	Covered    int `json:"covered"`
	Percentage int `json:"percentage"`
}

// RouteRatio is a Ratio that also lists the covered route node ids.
type RouteRatio struct {
	Ratio
	NodeIDs []string `json:"nodeIds"`
}

// Snapshot is coverage derived from a graph and a plan. It is never updated
// in place; recompute it after the plan changes.
type Snapshot struct {
	Routes     RouteRatio `json:"routes"`
	Elements   Ratio      `json:"elements"`
	Forms      Ratio      `json:"forms"`
	Assertions int        `json:"assertions"`
	Flows      int        `json:"flows"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Compute derives the coverage of p over g.
//
// A navigate step covers the route node its URL maps to. Interaction steps
// cover their target element. A fill step covers the form owning the filled
// field; a form is also covered when any of its fields was interacted with.
// Assertions are counted and cover element targets. A flow is a test case
// with at least two steps.
func Compute(g *graph.Graph, p *plan.Plan) Snapshot {
	routes := g.RouteNodes()

	var snap Snapshot
	snap.Routes.Total = len(routes)
	for _, n := range routes {
		snap.Elements.Total += len(n.Elements)
		snap.Forms.Total += len(n.Forms)
	}

	coveredNodes := make(map[string]bool)
	coveredTargets := make(map[string]bool)
	coveredForms := make(map[string]bool)

	for _, tc := range p.AllTests() {
		if len(tc.Flow) >= 2 {
			snap.Flows++
		}
		for _, step := range tc.Flow {
			if step.Target == nil {
				continue
			}
			if step.Action == plan.ActionNavigate {
				if id, ok := nodeForURL(g, routes, step.Target.Primary()); ok {
					coveredNodes[id] = true
				}
				continue
			}
			if !step.Action.Interacts() {
				continue
			}
			id := step.Target.Identifier()
			coveredTargets[id] = true
			if step.Action == plan.ActionFill {
				if key, ok := owningForm(routes, id); ok {
					coveredForms[key] = true
				}
			}
		}
		for _, a := range tc.Assertions {
			snap.Assertions++
			if a.Target.IsDescriptor() {
				coveredTargets[a.Target.Identifier()] = true
			}
		}
	}

	for _, n := range routes {
		for _, f := range n.Forms {
			key := formKey(n, f)
			if coveredForms[key] {
				continue
			}
			for _, field := range f.Fields {
				if coveredTargets[field.Identifier()] {
					coveredForms[key] = true
					break
				}
			}
		}
	}

	coveredElements := 0
	for _, n := range routes {
		for _, el := range n.Elements {
			if coveredTargets[el.Identifier()] || coveredTargets[el.Selector.Primary] {
				coveredElements++
			}
		}
	}

	snap.Routes.Covered = len(coveredNodes)
	snap.Routes.Percentage = percent(snap.Routes.Covered, snap.Routes.Total)
	snap.Routes.NodeIDs = make([]string, 0, len(coveredNodes))
	for id := range coveredNodes {
		snap.Routes.NodeIDs = append(snap.Routes.NodeIDs, id)
	}
	sort.Strings(snap.Routes.NodeIDs)

	snap.Elements.Covered = coveredElements
	snap.Elements.Percentage = percent(coveredElements, snap.Elements.Total)

	snap.Forms.Covered = len(coveredForms)
	snap.Forms.Percentage = percent(snap.Forms.Covered, snap.Forms.Total)

	snap.Timestamp = time.Now().UTC()
	return snap
}

// MeetsTarget reports whether s reaches every goal set in t. Nil goals are
// not checked.
func MeetsTarget(s Snapshot, t plan.CoverageTarget) bool {
	for _, d := range []Dimension{Routes, Elements, Forms, Assertions, Flows} {
		if s.Below(d, t) {
			return false
		}
	}
	return true
}

// Below reports whether dimension d falls short of its goal in t. A
// dimension without a goal is never below.
func (s Snapshot) Below(d Dimension, t plan.CoverageTarget) bool {
	switch d {
	case Routes:
		return t.Routes != nil && float64(s.Routes.Percentage) < *t.Routes
	case Elements:
		return t.Elements != nil && float64(s.Elements.Percentage) < *t.Elements
	case Forms:
		return t.Forms != nil && float64(s.Forms.Percentage) < *t.Forms
	case Assertions:
		return t.Assertions != nil && s.Assertions < *t.Assertions
	case Flows:
		return t.Flows != nil && s.Flows < *t.Flows
	}
	return false
}

func percent(covered, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(covered) / float64(total) * 100))
}

// nodeForURL maps a navigated URL to a route node. An exact route match wins;
// otherwise the node with the longest URL prefixing rawURL is used.
func nodeForURL(g *graph.Graph, routes []*graph.Node, rawURL string) (string, bool) {
	path := routeOfURL(g.BaseURL, rawURL)
	for _, n := range routes {
		if n.RouteOrRoot() == path {
			return n.ID, true
		}
	}

	best, bestLen := "", -1
	for _, n := range routes {
		if n.URL == "" {
			continue
		}
		if n.URL == rawURL {
			return n.ID, true
		}
		if strings.HasPrefix(rawURL, n.URL) && len(n.URL) > bestLen {
			best, bestLen = n.ID, len(n.URL)
		}
	}
	return best, bestLen >= 0
}

func routeOfURL(baseURL, rawURL string) string {
	base := strings.TrimRight(baseURL, "/")
	path := strings.TrimPrefix(rawURL, base)
	if u, err := url.Parse(path); err == nil && (u.Scheme != "" || u.Host != "") {
		path = u.Path
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/"
	}
	return path
}

func owningForm(routes []*graph.Node, target string) (string, bool) {
	for _, n := range routes {
		for _, f := range n.Forms {
			for _, field := range f.Fields {
				if field.Identifier() == target || field.Name == target {
					return formKey(n, f), true
				}
			}
		}
	}
	return "", false
}

func formKey(n *graph.Node, f graph.FormDescriptor) string {
	return n.ID + ":" + f.ID
}
