package generator

import (
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

// primaryKeywords are matched in order against button text; the first
// keyword with a match picks the primary button.
var primaryKeywords = []string{"submit", "save", "continue", "login", "sign", "next", "confirm"}

// Smoke generates page-load, primary-action and form-presence tests for
// every route.
type Smoke struct{}

// Kind implements Generator.
func (Smoke) Kind() Kind { return KindSmoke }

// Generate implements Generator.
func (Smoke) Generate(g *graph.Graph, _ Options) []plan.TestCase {
	routes := g.RouteNodes()
	var tests []plan.TestCase

	for _, n := range routes {
		tests = append(tests, pageLoadTest(g, n))
	}
	for _, n := range routes {
		if button, ok := primaryButton(n); ok {
			tests = append(tests, primaryActionTest(g, n, button))
		}
	}
	for _, n := range routes {
		if len(n.Forms) > 0 {
			tests = append(tests, formPresenceTest(g, n))
		}
	}
	return tests
}

func pageLoadTest(g *graph.Graph, n *graph.Node) plan.TestCase {
	var assertions []plan.Assertion
	if headings := n.ElementsWithRole("heading"); len(headings) > 0 {
		assertions = append(assertions, plan.Assertion{
			Type:        plan.AssertVisible,
			Target:      *plan.Descriptor(headings[0]),
			Description: `Heading "` + headings[0].Text + `" should be visible`,
		})
	}
	assertions = append(assertions, urlContains(n.RouteOrRoot(), "URL should contain route"))

	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindSmoke), n.ID, "load"),
		Name:              "[Smoke] " + n.Name + " - Page loads and heading visible",
		Description:       "Navigate to " + n.Name + " and verify basic content",
		Flow:              []plan.Step{navigateTo(g, n), waitForIdle("Wait for page stability")},
		Assertions:        assertions,
		Tags:              []string{"smoke", "navigation", routeTag(n)},
		Priority:          plan.PriorityCritical,
		EstimatedDuration: 3000,
	})
}

func primaryActionTest(g *graph.Graph, n *graph.Node, button graph.ElementDescriptor) plan.TestCase {
	label := button.Name
	if label == "" {
		label = "primary button"
	}
	click := plan.Step{
		Action:      plan.ActionClick,
		Target:      plan.Descriptor(button),
		Options:     &plan.StepOptions{Timeout: 3000},
		Description: `Click "` + label + `"`,
	}
	return finalize(plan.TestCase{
		ID:          hashID("test", string(KindSmoke), n.ID, "primary", button.Identifier()),
		Name:        "[Smoke] " + n.Name + " - Primary action clickable",
		Description: "Verify primary button on " + n.Name + " is interactive",
		Flow:        []plan.Step{navigateTo(g, n), click},
		Assertions: []plan.Assertion{{
			Type:        plan.AssertVisible,
			Target:      *plan.Descriptor(button),
			Description: "Button should be visible and clickable",
		}},
		Tags:              []string{"smoke", "interaction", routeTag(n)},
		Priority:          plan.PriorityHigh,
		EstimatedDuration: 4000,
	})
}

func formPresenceTest(g *graph.Graph, n *graph.Node) plan.TestCase {
	selector := n.Forms[0].Selector.Primary
	if selector == "" {
		selector = "form"
	}
	wait := plan.Step{
		Action:      plan.ActionWait,
		Target:      plan.Raw(selector),
		Options:     &plan.StepOptions{Timeout: 3000, WaitFor: "visible"},
		Description: "Form should be visible",
	}
	return finalize(plan.TestCase{
		ID:          hashID("test", string(KindSmoke), n.ID, "form"),
		Name:        "[Smoke] " + n.Name + " - Form visible",
		Description: "Verify form exists on " + n.Name,
		Flow:        []plan.Step{navigateTo(g, n), wait},
		Assertions: []plan.Assertion{{
			Type:        plan.AssertVisible,
			Target:      *plan.Raw(selector),
			Description: "Form should be present",
		}},
		Tags:              []string{"smoke", "form", routeTag(n)},
		Priority:          plan.PriorityHigh,
		EstimatedDuration: 3000,
	})
}

// primaryButton picks the first button matching the earliest keyword, else
// the first button.
func primaryButton(n *graph.Node) (graph.ElementDescriptor, bool) {
	buttons := n.ElementsOfType("button")
	if len(buttons) == 0 {
		return graph.ElementDescriptor{}, false
	}
	for _, k := range primaryKeywords {
		for _, b := range buttons {
			if containsAny(b.Text, k) || containsAny(b.Name, k) {
				return b, true
			}
		}
	}
	return buttons[0], true
}
