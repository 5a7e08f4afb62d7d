// Package generator synthesizes test cases from a crawled graph. Every
// generator is a deterministic function of the graph and its options: test
// and step ids are content hashes, never random.
package generator

import (
	"fmt"
	"strings"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

// Kind names a generator.
type Kind string

const (
	KindSmoke   Kind = "smoke"
	KindForm    Kind = "form"
	KindJourney Kind = "journey"
	KindCRUD    Kind = "crud"
	KindA11y    Kind = "a11y"
)

// Kinds lists every generator kind in default invocation order.
var Kinds = []Kind{KindSmoke, KindForm, KindJourney, KindCRUD, KindA11y}

// Options tune generation. Generators ignore options that do not apply to
// them.
type Options struct {
	Seed int64

	// Form variants are generated unless skipped.
	SkipInvalid  bool
	SkipBoundary bool

	// Journey bounds.
	MaxSteps    int
	MaxJourneys int
}

// Generator produces test cases for a graph.
type Generator interface {
	Kind() Kind
	Generate(g *graph.Graph, opts Options) []plan.TestCase
}

// New returns the generator for kind.
func New(kind Kind) (Generator, error) {
	switch kind {
	case KindSmoke:
		return Smoke{}, nil
	case KindForm:
		return &Form{}, nil
	case KindJourney:
		return Journey{}, nil
	case KindCRUD:
		return CRUD{}, nil
	case KindA11y:
		return A11y{}, nil
	}
	return nil, fmt.Errorf("unknown generator %q", kind)
}

// ParseKinds converts names to kinds, rejecting unknown ones.
func ParseKinds(names []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k := Kind(strings.ToLower(strings.TrimSpace(name)))
		if _, err := New(k); err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// hashID builds a deterministic id from prefix and key parts.
func hashID(prefix string, parts ...string) string {
	return prefix + "-" + graph.HashString(strings.Join(parts, "|"))
}

// finalize assigns step ids derived from the test id and step position.
func finalize(tc plan.TestCase) plan.TestCase {
	for i := range tc.Flow {
		if tc.Flow[i].ID == "" {
			tc.Flow[i].ID = hashID("step", tc.ID, fmt.Sprint(i))
		}
	}
	if tc.Assertions == nil {
		tc.Assertions = []plan.Assertion{}
	}
	return tc
}

func navigateTo(g *graph.Graph, n *graph.Node) plan.Step {
	return plan.Step{
		Action:      plan.ActionNavigate,
		Target:      plan.Raw(g.URLFor(n)),
		Description: "Navigate to " + n.Name,
	}
}

func waitForIdle(description string) plan.Step {
	return plan.Step{
		Action:      plan.ActionWait,
		Options:     &plan.StepOptions{Timeout: 2000, WaitFor: "networkidle"},
		Description: description,
	}
}

func urlContains(route, description string) plan.Assertion {
	return plan.Assertion{
		Type:        plan.AssertURL,
		Target:      *plan.Raw(route),
		Expected:    route,
		Operator:    plan.OpContains,
		Description: description,
	}
}

func routeTag(n *graph.Node) string {
	if n.Route == "" {
		return "root"
	}
	return n.Route
}

// containsAny reports whether s contains any keyword, ignoring case.
func containsAny(s string, keywords ...string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
