package generator

import (
	"fmt"
	"strings"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

// A11y generates per-route accessibility checks: heading presence, form
// labels, image alt text and accessible names of interactive elements. A
// check's priority rises when the crawl already found violations.
type A11y struct{}

// Kind implements Generator.
func (A11y) Kind() Kind { return KindA11y }

// Generate implements Generator.
func (A11y) Generate(g *graph.Graph, _ Options) []plan.TestCase {
	var tests []plan.TestCase
	for _, n := range g.RouteNodes() {
		tests = append(tests, headingTest(g, n))
		if len(n.Forms) > 0 {
			tests = append(tests, formLabelTest(g, n))
		}
		if images := n.ElementsWithRole("img"); len(images) > 0 {
			tests = append(tests, imageAltTest(g, n, images))
		}
		interactive := append(n.ElementsOfType("button"), n.ElementsOfType("link")...)
		if len(interactive) > 0 {
			tests = append(tests, accessibleNameTest(g, n, interactive))
		}
	}
	return tests
}

func headingTest(g *graph.Graph, n *graph.Node) plan.TestCase {
	assertions := []plan.Assertion{urlContains(n.RouteOrRoot(), "On correct page")}
	headings := n.ElementsWithRole("heading")
	if len(headings) > 0 {
		assertions = append(assertions, plan.Assertion{
			Type:        plan.AssertVisible,
			Target:      *plan.Descriptor(headings[0]),
			Description: "Page has a heading",
		})
	}
	priority := plan.PriorityMedium
	if len(headings) == 0 {
		priority = plan.PriorityHigh
	}
	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindA11y), n.ID, "heading"),
		Name:              "[A11y] " + n.Name + " - Heading structure",
		Description:       "Verify " + n.Name + " has proper heading hierarchy",
		Flow:              []plan.Step{navigateTo(g, n)},
		Assertions:        assertions,
		Tags:              []string{"a11y", "heading", routeTag(n)},
		Priority:          priority,
		EstimatedDuration: 2000,
	})
}

func formLabelTest(g *graph.Graph, n *graph.Node) plan.TestCase {
	form := n.Forms[0]
	unlabeled := 0
	for _, f := range form.Fields {
		if f.Label == "" && f.Placeholder == "" {
			unlabeled++
		}
	}
	return finalize(plan.TestCase{
		ID:          hashID("test", string(KindA11y), n.ID, "labels"),
		Name:        "[A11y] " + n.Name + " - Form labels",
		Description: fmt.Sprintf("Verify form fields have accessible labels. Found %d unlabeled fields.", unlabeled),
		Flow:        []plan.Step{navigateTo(g, n)},
		Assertions: []plan.Assertion{{
			Type:        plan.AssertVisible,
			Target:      *plan.Raw(firstNonEmpty(form.Selector.Primary, "form")),
			Description: "Form is visible",
		}},
		Tags:              []string{"a11y", "form", "labels", routeTag(n)},
		Priority:          violationPriority(unlabeled, plan.PriorityHigh),
		EstimatedDuration: 2000,
	})
}

func imageAltTest(g *graph.Graph, n *graph.Node, images []graph.ElementDescriptor) plan.TestCase {
	missing := 0
	for _, img := range images {
		if strings.TrimSpace(img.Attributes["alt"]) == "" {
			missing++
		}
	}
	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindA11y), n.ID, "alt"),
		Name:              "[A11y] " + n.Name + " - Image alt text",
		Description:       fmt.Sprintf("Verify images have alt text. Found %d images, %d missing alt.", len(images), missing),
		Flow:              []plan.Step{navigateTo(g, n)},
		Tags:              []string{"a11y", "images", routeTag(n)},
		Priority:          violationPriority(missing, plan.PriorityHigh),
		EstimatedDuration: 2000,
	})
}

func accessibleNameTest(g *graph.Graph, n *graph.Node, elements []graph.ElementDescriptor) plan.TestCase {
	unnamed := 0
	for _, el := range elements {
		if el.Name == "" && el.Text == "" && el.Attributes["aria-label"] == "" {
			unnamed++
		}
	}
	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindA11y), n.ID, "names"),
		Name:              "[A11y] " + n.Name + " - Interactive element names",
		Description:       fmt.Sprintf("Verify buttons/links have accessible names. Found %d elements, %d unnamed.", len(elements), unnamed),
		Flow:              []plan.Step{navigateTo(g, n)},
		Tags:              []string{"a11y", "interactive", routeTag(n)},
		Priority:          violationPriority(unnamed, plan.PriorityMedium),
		EstimatedDuration: 2000,
	})
}

func violationPriority(violations int, elevated plan.Priority) plan.Priority {
	if violations > 0 {
		return elevated
	}
	return plan.PriorityLow
}
