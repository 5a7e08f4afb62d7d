package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/plan"
)

const base = "http://app.test"

var (
	loginButton = graph.ElementDescriptor{
		ID: "el-login", Role: "button", Type: "button", Text: "Login",
		Selector: graph.SelectorStrategy{Primary: `button:has-text("Login")`},
	}
	heading = graph.ElementDescriptor{
		ID: "el-title", Role: "heading", Type: "heading", Text: "Contact",
		Selector: graph.SelectorStrategy{Primary: `h1:has-text("Contact")`},
	}
	contactForm = graph.FormDescriptor{
		ID:       "form-contact",
		Selector: graph.SelectorStrategy{Primary: "#contact"},
		Fields: []graph.FormField{
			{Name: "email", Type: "email", Selector: graph.SelectorStrategy{Primary: "#email"}},
			{Name: "message", Type: "text", Selector: graph.SelectorStrategy{Primary: `textarea[name="message"]`}},
		},
	}
	newsletterForm = graph.FormDescriptor{
		ID:     "form-news",
		Fields: []graph.FormField{{Name: "news-email", Selector: graph.SelectorStrategy{Primary: "#news"}}},
	}
)

func testGraph() *graph.Graph {
	return &graph.Graph{
		BaseURL: base + "/",
		Nodes: []*graph.Node{
			{ID: "root", Type: graph.NodeRoute, URL: base + "/", Route: "/", Elements: []graph.ElementDescriptor{loginButton}},
			{ID: "contact", Type: graph.NodeRoute, URL: base + "/contact", Route: "/contact",
				Elements: []graph.ElementDescriptor{heading},
				Forms:    []graph.FormDescriptor{contactForm, newsletterForm}},
			{ID: "widget", Type: graph.NodeComponent, Elements: []graph.ElementDescriptor{{ID: "el-ignored"}}},
		},
	}
}

func navigate(u string) plan.Step {
	return plan.Step{Action: plan.ActionNavigate, Target: plan.Raw(u)}
}

func testPlan(tests ...plan.TestCase) *plan.Plan {
	return &plan.Plan{Suites: []plan.Suite{{ID: "s", Tests: tests}}}
}

func TestCompute_ZeroTotals(t *testing.T) {
	snap := Compute(&graph.Graph{BaseURL: base}, testPlan(plan.TestCase{Flow: []plan.Step{navigate(base + "/")}}))

	assert.Equal(t, 0, snap.Routes.Total)
	assert.Equal(t, 0, snap.Routes.Percentage)
	assert.Equal(t, 0, snap.Elements.Percentage)
	assert.Equal(t, 0, snap.Forms.Percentage)
	assert.Empty(t, snap.Routes.NodeIDs)
}

func TestCompute_Routes(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"root", base + "/", []string{"root"}},
		{"exact route", base + "/contact", []string{"contact"}},
		{"query and trailing slash", base + "/contact/?ref=nav", []string{"contact"}},
		{"prefix containment", base + "/contact-us", []string{"contact"}},
		{"unknown origin", "http://other.test/x", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Compute(testGraph(), testPlan(plan.TestCase{Flow: []plan.Step{navigate(tt.url)}}))
			assert.Equal(t, tt.want, snap.Routes.NodeIDs)
			assert.Equal(t, 2, snap.Routes.Total, "component nodes are not routes")
		})
	}
}

func TestCompute_ElementsAndForms(t *testing.T) {
	tc := plan.TestCase{
		Flow: []plan.Step{
			navigate(base + "/contact"),
			{Action: plan.ActionFill, Target: plan.Raw("#email"), Value: "a@b.c"},
			{Action: plan.ActionClick, Target: plan.Descriptor(loginButton)},
			{Action: plan.ActionWait},
		},
		Assertions: []plan.Assertion{
			{Type: plan.AssertVisible, Target: *plan.Descriptor(heading)},
			{Type: plan.AssertURL, Target: *plan.Raw("/contact")},
		},
	}
	snap := Compute(testGraph(), testPlan(tc))

	assert.Equal(t, Ratio{Total: 2, Covered: 2, Percentage: 100}, snap.Elements)
	assert.Equal(t, Ratio{Total: 2, Covered: 1, Percentage: 50}, snap.Forms)
	assert.Equal(t, 2, snap.Assertions)
	assert.Equal(t, 1, snap.Flows)
	assert.Equal(t, 50, snap.Routes.Percentage)
}

func TestCompute_AnyFieldCoversForm(t *testing.T) {
	tc := plan.TestCase{Flow: []plan.Step{{Action: plan.ActionClick, Target: plan.Raw("#news")}}}
	snap := Compute(testGraph(), testPlan(tc))

	assert.Equal(t, 1, snap.Forms.Covered)
	assert.Equal(t, 0, snap.Flows)
}

func TestCompute_Monotonic(t *testing.T) {
	g := testGraph()
	tests := []plan.TestCase{
		{Flow: []plan.Step{navigate(base + "/")}},
		{Flow: []plan.Step{navigate(base + "/contact"), {Action: plan.ActionFill, Target: plan.Raw("#email")}}},
		{Flow: []plan.Step{{Action: plan.ActionClick, Target: plan.Descriptor(loginButton)}},
			Assertions: []plan.Assertion{{Type: plan.AssertVisible, Target: *plan.Descriptor(heading)}}},
		{Flow: []plan.Step{{Action: plan.ActionFill, Target: plan.Raw("#news")}, {Action: plan.ActionWait}}},
	}

	prev := Compute(g, testPlan())
	for i := range tests {
		next := Compute(g, testPlan(tests[:i+1]...))
		assert.GreaterOrEqual(t, next.Routes.Percentage, prev.Routes.Percentage)
		assert.GreaterOrEqual(t, next.Elements.Percentage, prev.Elements.Percentage)
		assert.GreaterOrEqual(t, next.Forms.Percentage, prev.Forms.Percentage)
		assert.GreaterOrEqual(t, next.Assertions, prev.Assertions)
		assert.GreaterOrEqual(t, next.Flows, prev.Flows)
		prev = next
	}
	assert.Equal(t, 100, prev.Forms.Percentage)
}

func TestMeetsTarget(t *testing.T) {
	pct := func(v float64) *float64 { return &v }
	count := func(v int) *int { return &v }

	snap := Snapshot{Assertions: 3, Flows: 1}
	snap.Routes.Percentage = 80
	snap.Elements.Percentage = 40

	assert.True(t, MeetsTarget(snap, plan.CoverageTarget{}))
	assert.True(t, MeetsTarget(snap, plan.CoverageTarget{Routes: pct(80), Assertions: count(3)}))
	assert.False(t, MeetsTarget(snap, plan.CoverageTarget{Routes: pct(81)}))
	assert.False(t, MeetsTarget(snap, plan.CoverageTarget{Flows: count(2)}))

	target := plan.CoverageTarget{Routes: pct(50), Elements: pct(70)}
	require.True(t, snap.Below(Elements, target))
	assert.False(t, snap.Below(Routes, target))
	assert.False(t, snap.Below(Forms, target))
}
