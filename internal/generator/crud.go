package generator

import (
	"regexp"
	"strings"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

var (
	createKeywords = []string{"create", "add", "new"}
	updateKeywords = []string{"edit", "update"}
	deleteKeywords = []string{"delete", "remove"}

	entityPattern = regexp.MustCompile(`/([\w-]+)`)
)

// CRUD detects create, list, update and delete capabilities per route and
// emits one test skeleton per capability.
type CRUD struct{}

// Kind implements Generator.
func (CRUD) Kind() Kind { return KindCRUD }

type crudScreen struct {
	node                   *graph.Node
	entity                 string
	create, update, delete *graph.ElementDescriptor
	hasCreate, hasList     bool
}

// Generate implements Generator.
func (CRUD) Generate(g *graph.Graph, _ Options) []plan.TestCase {
	var tests []plan.TestCase
	for _, n := range g.RouteNodes() {
		s, ok := detectScreen(n)
		if !ok {
			continue
		}
		if s.hasCreate {
			tests = append(tests, createTest(g, s))
		}
		if s.hasList {
			tests = append(tests, readTest(g, s))
		}
		if s.update != nil {
			tests = append(tests, actionTest(g, s, "update", *s.update, plan.PriorityMedium))
		}
		if s.delete != nil {
			tests = append(tests, actionTest(g, s, "delete", *s.delete, plan.PriorityLow))
		}
	}
	return tests
}

func detectScreen(n *graph.Node) (crudScreen, bool) {
	s := crudScreen{node: n}
	for _, el := range n.ElementsOfType("button") {
		switch {
		case s.create == nil && containsAny(el.Text, createKeywords...):
			s.create = &el
		case s.update == nil && containsAny(el.Text, updateKeywords...):
			s.update = &el
		case s.delete == nil && containsAny(el.Text, deleteKeywords...):
			s.delete = &el
		}
	}
	s.hasCreate = s.create != nil || len(n.Forms) > 0
	s.hasList = len(n.ElementsWithRole("list")) > 0 || len(n.ElementsWithRole("table")) > 0 ||
		strings.Contains(n.Route, "list") || strings.HasSuffix(n.Route, "s")

	if !s.hasCreate && !s.hasList && s.update == nil && s.delete == nil {
		return s, false
	}
	s.entity = entityName(n)
	return s, true
}

func entityName(n *graph.Node) string {
	if m := entityPattern.FindStringSubmatch(n.Route); m != nil {
		return strings.ReplaceAll(m[1], "-", " ")
	}
	if fields := strings.Fields(n.Name); len(fields) > 0 {
		return fields[0]
	}
	return "Item"
}

func createTest(g *graph.Graph, s crudScreen) plan.TestCase {
	flow := []plan.Step{navigateTo(g, s.node)}
	if s.create != nil {
		flow = append(flow, plan.Step{
			Action:      plan.ActionClick,
			Target:      plan.Descriptor(*s.create),
			Options:     &plan.StepOptions{Timeout: 3000},
			Description: `Click "` + s.create.Text + `" button`,
		})
	}
	if len(s.node.Forms) > 0 {
		form := s.node.Forms[0]
		for _, field := range form.Fields {
			step := plan.Step{
				Action:      fieldAction(field),
				Target:      plan.Raw(field.Identifier()),
				Description: `Fill "` + field.Name + `"`,
			}
			if step.Action != plan.ActionCheck {
				step.Value = crudValue(field)
			}
			flow = append(flow, step)
		}
		if form.SubmitButton != nil {
			flow = append(flow, submitStep(s.node, form, "Submit form"))
		}
	}

	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindCRUD), s.node.ID, "create"),
		Name:              "[CRUD] Create " + s.entity,
		Description:       "Test create operation for " + s.entity,
		Flow:              flow,
		Tags:              []string{"crud", "create", routeTag(s.node)},
		Priority:          plan.PriorityHigh,
		EstimatedDuration: 5000,
	})
}

func readTest(g *graph.Graph, s crudScreen) plan.TestCase {
	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindCRUD), s.node.ID, "read"),
		Name:              "[CRUD] Read/List " + s.entity,
		Description:       "Test list/read operation for " + s.entity,
		Flow:              []plan.Step{navigateTo(g, s.node), waitForIdle("Wait for list to load")},
		Assertions:        []plan.Assertion{urlContains(s.node.RouteOrRoot(), "Verify on list page")},
		Tags:              []string{"crud", "read", routeTag(s.node)},
		Priority:          plan.PriorityMedium,
		EstimatedDuration: 3000,
	})
}

func actionTest(g *graph.Graph, s crudScreen, op string, button graph.ElementDescriptor, priority plan.Priority) plan.TestCase {
	title := strings.ToUpper(op[:1]) + op[1:]
	click := plan.Step{
		Action:      plan.ActionClick,
		Target:      plan.Descriptor(button),
		Description: `Click "` + button.Text + `" button`,
	}
	return finalize(plan.TestCase{
		ID:                hashID("test", string(KindCRUD), s.node.ID, op),
		Name:              "[CRUD] " + title + " " + s.entity,
		Description:       "Test " + op + " operation for " + s.entity,
		Flow:              []plan.Step{navigateTo(g, s.node), click},
		Tags:              []string{"crud", op, routeTag(s.node)},
		Priority:          priority,
		EstimatedDuration: 4000,
	})
}

func crudValue(field graph.FormField) string {
	switch field.Type {
	case "text":
		return "Test Item"
	case "email":
		return "test@example.com"
	case "number":
		return "42"
	case "date":
		return "2026-02-15"
	case "tel":
		return "+1234567890"
	case "url":
		return "https://example.com"
	case "select":
		return firstNonEmpty(field.Label, field.Name, "option-1")
	}
	return "Test Value"
}
