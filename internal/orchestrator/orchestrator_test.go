package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/generator"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/logger"
	"github.com/v0xg/webprobe/internal/plan"
)

const base = "http://app.test"

func pct(v float64) *float64 { return &v }
func count(v int) *int       { return &v }

func button(id, text string) graph.ElementDescriptor {
	return graph.ElementDescriptor{
		ID: id, Role: "button", Type: "button", Text: text, Name: text, Attributes: map[string]string{},
		Selector: graph.SelectorStrategy{Primary: `button:has-text("` + text + `")`},
	}
}

func appGraph() *graph.Graph {
	login := button("el-login", "Login")
	remove := button("el-remove", "Remove")
	return &graph.Graph{
		AppName: "shop",
		BaseURL: base,
		Nodes: []*graph.Node{
			{ID: "home", Type: graph.NodeRoute, URL: base + "/", Route: "/", Name: "Home",
				Elements: []graph.ElementDescriptor{login}},
			{ID: "items", Type: graph.NodeRoute, URL: base + "/items", Route: "/items", Name: "Items",
				Elements: []graph.ElementDescriptor{remove},
				Forms: []graph.FormDescriptor{{
					ID:       "form-item",
					Selector: graph.SelectorStrategy{Primary: "#item"},
					Fields:   []graph.FormField{{Name: "title", Type: "text", Selector: graph.SelectorStrategy{Primary: "#title"}}},
				}}},
		},
		Edges: []graph.Edge{
			{From: "home", To: "items", Type: graph.EdgeNavigate, Trigger: login},
			{From: "items", To: "home", Type: graph.EdgeNavigate, Trigger: remove},
		},
	}
}

func run(t *testing.T, g *graph.Graph, opts Options) *Result {
	t.Helper()
	res, err := New(logger.NewNop()).Run(g, opts)
	require.NoError(t, err)
	return res
}

func suiteNames(p *plan.Plan) []string {
	var out []string
	for _, s := range p.Suites {
		out = append(out, s.Name)
	}
	return out
}

func TestRun_MeetsGoals(t *testing.T) {
	res := run(t, appGraph(), Options{
		Goals:     plan.CoverageTarget{Routes: pct(100), Forms: pct(100), Flows: count(1)},
		Generator: generator.Options{Seed: 3},
	})

	assert.Equal(t, []string{"Smoke Tests", "Form Tests (iter 0)", "Journey Tests (iter 0)"}, suiteNames(res.Plan))
	assert.Equal(t, 100, res.Coverage.Routes.Percentage)
	assert.Equal(t, 100, res.Coverage.Forms.Percentage)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, int64(3), res.Plan.Config.Seed)
	assert.Equal(t, plan.Version, res.Plan.Version)
	assert.Equal(t, "shop", res.Plan.AppName)
}

func TestRun_GoalsAlreadyMet(t *testing.T) {
	res := run(t, appGraph(), Options{Goals: plan.CoverageTarget{}})
	assert.Empty(t, res.Plan.Suites)
	assert.Equal(t, 0, res.Iterations)
}

func TestRun_TerminatesOnUnreachableGoals(t *testing.T) {
	res := run(t, appGraph(), Options{
		Types: generator.Kinds,
		Goals: plan.CoverageTarget{
			Routes: pct(100), Elements: pct(100), Forms: pct(100),
			Assertions: count(10000), Flows: count(10000),
		},
	})

	assert.LessOrEqual(t, res.Iterations, MaxIterations)
	assert.Equal(t, 2, res.Iterations, "second iteration adds nothing new")

	ids := map[string]bool{}
	for _, tc := range res.Plan.AllTests() {
		assert.False(t, ids[tc.ID], "duplicate test %s", tc.Name)
		ids[tc.ID] = true
	}
	names := suiteNames(res.Plan)
	assert.Contains(t, names, "CRUD Tests")
	assert.Contains(t, names, "Accessibility Tests")
}

func TestRun_MaxTests(t *testing.T) {
	res := run(t, appGraph(), Options{
		Types:    generator.Kinds,
		Goals:    plan.CoverageTarget{Routes: pct(100), Flows: count(100)},
		MaxTests: 3,
	})
	assert.Equal(t, 3, res.Plan.TestCount())
	require.Len(t, res.Plan.Suites, 1)
	assert.Equal(t, "smoke", res.Plan.Suites[0].Category)
}

func TestRun_OnlyShortDimensions(t *testing.T) {
	res := run(t, appGraph(), Options{
		Types: []generator.Kind{generator.KindCRUD, generator.KindForm},
		Goals: plan.CoverageTarget{Elements: pct(50)},
	})
	assert.Equal(t, []string{"CRUD Tests"}, suiteNames(res.Plan), "form dimension has no goal")
	assert.GreaterOrEqual(t, res.Coverage.Elements.Percentage, 50)
}

func TestRun_UnknownGenerator(t *testing.T) {
	_, err := New(logger.NewNop()).Run(appGraph(), Options{Types: []generator.Kind{"fuzz"}})
	assert.Error(t, err)
}
