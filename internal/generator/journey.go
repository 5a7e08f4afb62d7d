package generator

import (
	"slices"
	"strings"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

const (
	defaultMaxSteps    = 5
	defaultMaxJourneys = 20
	maxStartNodes      = 3
)

// Journey generates multi-page navigation tests by walking graph edges
// depth-first. Each emitted path is unique.
type Journey struct{}

// Kind implements Generator.
func (Journey) Kind() Kind { return KindJourney }

// Generate implements Generator. Walks start at the root route (or the first
// few routes when there is none) and then, while fewer than MaxJourneys paths
// were found, at every route.
func (Journey) Generate(g *graph.Graph, opts Options) []plan.TestCase {
	if len(g.Edges) == 0 {
		return nil
	}
	w := &walker{
		graph:       g,
		nodes:       make(map[string]*graph.Node),
		adjacency:   g.Adjacency(),
		seen:        make(map[string]bool),
		maxSteps:    opts.MaxSteps,
		maxJourneys: opts.MaxJourneys,
	}
	if w.maxSteps <= 1 {
		w.maxSteps = defaultMaxSteps
	}
	if w.maxJourneys <= 0 {
		w.maxJourneys = defaultMaxJourneys
	}

	routes := g.RouteNodes()
	var starts []*graph.Node
	for _, n := range routes {
		w.nodes[n.ID] = n
		if n.Route == "" || n.Route == "/" {
			starts = append(starts, n)
		}
	}
	if len(starts) == 0 {
		starts = routes[:min(maxStartNodes, len(routes))]
	}

	for _, n := range starts {
		w.walk([]string{n.ID})
	}
	for _, n := range routes {
		w.walk([]string{n.ID})
	}
	return w.tests
}

type walker struct {
	graph       *graph.Graph
	nodes       map[string]*graph.Node
	adjacency   map[string][]graph.Edge
	seen        map[string]bool
	tests       []plan.TestCase
	maxSteps    int
	maxJourneys int
}

func (w *walker) done() bool {
	return len(w.tests) >= w.maxJourneys
}

// walk extends path depth-first. A path ends at maxSteps nodes or when no
// unvisited route is reachable; every newly reached path of two or more
// nodes is emitted.
func (w *walker) walk(path []string) {
	if w.done() {
		return
	}
	var next []string
	if len(path) < w.maxSteps {
		for _, e := range w.adjacency[path[len(path)-1]] {
			if _, ok := w.nodes[e.To]; ok && !slices.Contains(path, e.To) && !slices.Contains(next, e.To) {
				next = append(next, e.To)
			}
		}
	}
	if len(next) == 0 {
		w.emit(path)
		return
	}
	for _, to := range next {
		extended := append(append([]string(nil), path...), to)
		w.emit(extended)
		w.walk(extended)
	}
}

func (w *walker) emit(path []string) {
	if len(path) < 2 || w.done() {
		return
	}
	key := strings.Join(path, "->")
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.tests = append(w.tests, w.journeyTest(path, key))
}

func (w *walker) journeyTest(path []string, key string) plan.TestCase {
	var (
		flow       []plan.Step
		assertions []plan.Assertion
		names      []string
	)
	for i, id := range path {
		n := w.nodes[id]
		names = append(names, n.Name)
		if i == 0 {
			flow = append(flow, navigateTo(w.graph, n))
			assertions = append(assertions, urlContains(n.RouteOrRoot(), "URL contains "+n.RouteOrRoot()))
			continue
		}
		if trigger, ok := w.trigger(path[i-1], id); ok {
			flow = append(flow, plan.Step{
				Action:      plan.ActionClick,
				Target:      plan.Descriptor(trigger),
				Options:     &plan.StepOptions{Timeout: 5000},
				Description: "Go to " + n.Name,
			})
		}
		flow = append(flow, waitForIdle("Wait for navigation"))
		assertions = append(assertions, urlContains(n.RouteOrRoot(), "Landed on "+n.Name))
	}

	priority := plan.PriorityMedium
	if len(path) > 2 {
		priority = plan.PriorityHigh
	}
	title := strings.Join(names, " → ")
	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindJourney), key),
		Name:              "[Journey] " + title,
		Description:       "Multi-step flow: " + title,
		Flow:              flow,
		Assertions:        assertions,
		Tags:              append([]string{"journey", "navigation"}, path...),
		Priority:          priority,
		EstimatedDuration: int64(len(flow)) * 2000,
	})
}

// trigger returns the element of the first edge from -> to.
func (w *walker) trigger(from, to string) (graph.ElementDescriptor, bool) {
	for _, e := range w.adjacency[from] {
		if e.To == to && (e.Trigger.ID != "" || e.Trigger.Selector.Primary != "") {
			return e.Trigger, true
		}
	}
	return graph.ElementDescriptor{}, false
}
