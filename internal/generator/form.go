package generator

import (
	"fmt"
	"strings"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

const defaultFormSeed = 42

// Form generates fill-and-submit tests per form: a positive test with
// deterministic values, an empty submission and, when enabled, invalid
// email and max length boundary variants unless skipped.
//
// Values come from a linear congruential sequence seeded by Options.Seed and
// reset on every Generate call, so equal seeds yield equal plans.
type Form struct {
	seed     int64
	sequence int64
}

// Kind implements Generator.
func (*Form) Kind() Kind { return KindForm }

// Generate implements Generator.
func (f *Form) Generate(g *graph.Graph, opts Options) []plan.TestCase {
	f.seed = opts.Seed
	if f.seed == 0 {
		f.seed = defaultFormSeed
	}
	f.sequence = 0

	var tests []plan.TestCase
	for _, n := range g.Nodes {
		for _, form := range n.Forms {
			tests = append(tests, f.positive(g, n, form), f.emptySubmission(g, n, form))
			if !opts.SkipInvalid {
				if tc, ok := f.invalidEmail(g, n, form); ok {
					tests = append(tests, tc)
				}
			}
			if !opts.SkipBoundary {
				tests = append(tests, f.boundaries(g, n, form)...)
			}
		}
	}
	return tests
}

func (f *Form) positive(g *graph.Graph, n *graph.Node, form graph.FormDescriptor) plan.TestCase {
	flow := []plan.Step{f.navigate(g, n)}
	for _, field := range form.Fields {
		step := plan.Step{
			ID:          f.id("step", form.ID, field.Name, "valid"),
			Action:      fieldAction(field),
			Target:      plan.Raw(field.Identifier()),
			Description: fmt.Sprintf("Fill %s with valid %s", field.Name, field.Type),
		}
		if step.Action != plan.ActionCheck {
			step.Value = f.validValue(field)
		}
		flow = append(flow, step)
	}
	if form.SubmitButton != nil {
		submit := submitStep(n, form, "Submit form with valid payload")
		submit.ID = f.id("step", form.ID, "submit")
		flow = append(flow, submit)
	}

	return finalize(plan.TestCase{
		ID:                f.id("test", n.ID, form.ID, "positive"),
		Name:              "[Form] " + n.Name + " - Valid submission",
		Description:       "Fills every field with valid deterministic values.",
		Flow:              flow,
		Assertions:        formAssertions(form),
		Tags:              []string{"form", "positive", routeTag(n)},
		Priority:          plan.PriorityHigh,
		EstimatedDuration: 5000,
	})
}

func (f *Form) emptySubmission(g *graph.Graph, n *graph.Node, form graph.FormDescriptor) plan.TestCase {
	submit := submitStep(n, form, "Submit form without filling required fields")
	submit.ID = f.id("step", form.ID, "empty-submit")

	return finalize(plan.TestCase{
		ID:                f.id("test", n.ID, form.ID, "empty"),
		Name:              "[Form] " + n.Name + " - Empty submission validation",
		Description:       "Ensures required validation blocks empty submission.",
		Flow:              []plan.Step{f.navigate(g, n), submit},
		Assertions:        formAssertions(form),
		Tags:              []string{"form", "negative", "validation", routeTag(n)},
		Priority:          plan.PriorityMedium,
		EstimatedDuration: 4000,
	})
}

func (f *Form) invalidEmail(g *graph.Graph, n *graph.Node, form graph.FormDescriptor) (plan.TestCase, bool) {
	var email *graph.FormField
	for i := range form.Fields {
		if form.Fields[i].Type == "email" {
			email = &form.Fields[i]
			break
		}
	}
	if email == nil {
		return plan.TestCase{}, false
	}

	fill := plan.Step{
		ID:          f.id("step", form.ID, email.Name, "invalid"),
		Action:      plan.ActionFill,
		Target:      plan.Raw(email.Identifier()),
		Value:       "invalid-email-format",
		Description: "Fill email field with invalid format",
	}
	submit := submitStep(n, form, "Submit form with invalid email")
	submit.ID = f.id("step", form.ID, "invalid-submit")

	return finalize(plan.TestCase{
		ID:                f.id("test", n.ID, form.ID, "invalid-email"),
		Name:              "[Form] " + n.Name + " - Invalid email",
		Description:       "Checks email validation flow.",
		Flow:              []plan.Step{f.navigate(g, n), fill, submit},
		Assertions:        formAssertions(form),
		Tags:              []string{"form", "negative", "email", routeTag(n)},
		Priority:          plan.PriorityMedium,
		EstimatedDuration: 4000,
	}), true
}

func (f *Form) boundaries(g *graph.Graph, n *graph.Node, form graph.FormDescriptor) []plan.TestCase {
	var tests []plan.TestCase
	for _, field := range form.Fields {
		if field.Constraints == nil || field.Constraints.MaxLength == nil || *field.Constraints.MaxLength < 1 {
			continue
		}
		maxLength := *field.Constraints.MaxLength
		overflow := plan.Step{
			ID:          f.id("step", form.ID, field.Name, "boundary-overflow"),
			Action:      fieldAction(field),
			Target:      plan.Raw(field.Identifier()),
			Value:       strings.Repeat("x", maxLength+1),
			Description: fmt.Sprintf("Overflow maxLength (%d)", maxLength),
		}
		tests = append(tests, finalize(plan.TestCase{
			ID:                f.id("test", n.ID, form.ID, field.Name, "boundary"),
			Name:              "[Form] " + n.Name + " - " + field.Name + " max length boundary",
			Description:       "Boundary case generated from extracted field constraints.",
			Flow:              []plan.Step{f.navigate(g, n), overflow},
			Assertions:        formAssertions(form),
			Tags:              []string{"form", "boundary", routeTag(n)},
			Priority:          plan.PriorityLow,
			EstimatedDuration: 3000,
		}))
	}
	return tests
}

func (f *Form) navigate(g *graph.Graph, n *graph.Node) plan.Step {
	step := navigateTo(g, n)
	step.ID = f.id("step", n.ID, "navigate")
	return step
}

// validValue returns a deterministic valid value for the field type.
func (f *Form) validValue(field graph.FormField) string {
	switch field.Type {
	case "text":
		return fmt.Sprintf("user-%d", f.next(1000, 9999))
	case "email":
		return fmt.Sprintf("user%d@example.com", f.next(10, 99))
	case "password":
		return fmt.Sprintf("Secure-%d!", f.next(1000, 9999))
	case "tel":
		return fmt.Sprintf("+90555%d", f.next(1000000, 9999999))
	case "number":
		return fmt.Sprint(f.next(1, 99))
	case "url":
		return "https://example.com/path"
	case "date":
		return "2026-02-15"
	case "select":
		return firstNonEmpty(field.Label, field.Name, "option-1")
	case "checkbox":
		return "true"
	case "radio":
		return firstNonEmpty(field.Label, field.Name, "option-a")
	}
	return "deterministic-value"
}

// next advances the sequence and maps it into [min, max].
func (f *Form) next(min, max int64) int64 {
	f.sequence++
	span := max - min + 1
	raw := (f.seed*9301 + f.sequence*49297) % 233280
	if raw < 0 {
		raw += 233280
	}
	return min + raw%span
}

func (f *Form) id(prefix string, key ...string) string {
	return prefix + "-" + graph.HashString(fmt.Sprintf("%d-%s", f.seed, strings.Join(key, "-")))
}

func fieldAction(field graph.FormField) plan.Action {
	switch field.Type {
	case "select":
		return plan.ActionSelect
	case "checkbox", "radio":
		return plan.ActionCheck
	}
	return plan.ActionFill
}

func submitStep(n *graph.Node, form graph.FormDescriptor, description string) plan.Step {
	return plan.Step{Action: plan.ActionClick, Target: submitTarget(n, form), Description: description}
}

// submitTarget prefers the node's own element for the submit button so the
// click counts toward element coverage.
func submitTarget(n *graph.Node, form graph.FormDescriptor) *plan.Target {
	if sb := form.SubmitButton; sb != nil {
		for _, e := range n.Elements {
			if e.ID == sb.ID || (sb.Selector.Primary != "" && e.Selector.Primary == sb.Selector.Primary) {
				return plan.Descriptor(e)
			}
		}
		return plan.Descriptor(*sb)
	}
	for _, e := range n.ElementsWithRole("button") {
		if e.Attributes["type"] == "submit" {
			return plan.Descriptor(e)
		}
	}
	return plan.Raw(`button[type="submit"]`)
}

func formAssertions(form graph.FormDescriptor) []plan.Assertion {
	return []plan.Assertion{{
		Type:        plan.AssertVisible,
		Target:      *plan.Raw(firstNonEmpty(form.Selector.Primary, "form")),
		Description: "Form container remains visible",
	}}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
