// Package orchestrator runs generators until a plan reaches its coverage
// goals, a test ceiling, or generation stops producing new tests.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/v0xg/webprobe/internal/coverage"
	"github.com/v0xg/webprobe/internal/generator"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/logger"
	"github.com/v0xg/webprobe/internal/plan"
)

// MaxIterations bounds the generation loop.
const MaxIterations = 10

const defaultMaxTests = 500

// dimensions maps each generator to the coverage dimension it mainly raises.
var dimensions = map[generator.Kind]coverage.Dimension{
	generator.KindSmoke:   coverage.Routes,
	generator.KindForm:    coverage.Forms,
	generator.KindJourney: coverage.Flows,
	generator.KindCRUD:    coverage.Elements,
	generator.KindA11y:    coverage.Assertions,
}

// repeatable generators may run in every iteration while their dimension is
// short; the others run at most once per plan.
var repeatable = map[generator.Kind]bool{
	generator.KindForm:    true,
	generator.KindJourney: true,
}

var suiteInfo = map[generator.Kind]struct {
	name     string
	category string
	tags     []string
}{
	generator.KindSmoke:   {"Smoke Tests", "smoke", []string{"smoke", "critical"}},
	generator.KindForm:    {"Form Tests", "regression", []string{"form", "validation"}},
	generator.KindJourney: {"Journey Tests", "regression", []string{"journey", "navigation"}},
	generator.KindCRUD:    {"CRUD Tests", "regression", []string{"crud"}},
	generator.KindA11y:    {"Accessibility Tests", "accessibility", []string{"a11y"}},
}

// Options configures a run.
type Options struct {
	// Types lists the generators to use, in invocation order. Empty means
	// smoke, form and journey.
	Types     []generator.Kind
	Goals     plan.CoverageTarget
	MaxTests  int
	Generator generator.Options
}

// Result is a generated plan with its final coverage.
type Result struct {
	Plan       *plan.Plan
	Coverage   coverage.Snapshot
	Iterations int
}

// Orchestrator builds plans.
type Orchestrator struct {
	log logger.Interface
}

// New creates an orchestrator.
func New(log logger.Interface) *Orchestrator {
	return &Orchestrator{log: log}
}

// Run generates a plan for g. Each iteration recomputes coverage, stops when
// every goal is met or MaxTests is reached, and otherwise invokes each
// generator whose dimension is still below its goal. It stops early when an
// iteration adds no new test.
func (o *Orchestrator) Run(g *graph.Graph, opts Options) (*Result, error) {
	types := opts.Types
	if len(types) == 0 {
		types = []generator.Kind{generator.KindSmoke, generator.KindForm, generator.KindJourney}
	}
	maxTests := opts.MaxTests
	if maxTests <= 0 {
		maxTests = defaultMaxTests
	}

	generators := make([]generator.Generator, 0, len(types))
	for _, kind := range types {
		gen, err := generator.New(kind)
		if err != nil {
			return nil, err
		}
		generators = append(generators, gen)
	}

	p := &plan.Plan{
		Version:   plan.Version,
		AppName:   g.AppName,
		BaseURL:   g.BaseURL,
		Timestamp: time.Now().UTC(),
		Suites:    []plan.Suite{},
		Config: plan.Config{
			Seed:             opts.Generator.Seed,
			CoverageTarget:   opts.Goals,
			FlakyRetries:     2,
			ScreenshotOnFail: true,
		},
	}

	invoked := make(map[generator.Kind]bool)
	snap := coverage.Compute(g, p)
	iteration := 0
	for ; iteration < MaxIterations; iteration++ {
		if coverage.MeetsTarget(snap, opts.Goals) {
			o.log.Info("Coverage target met", "iterations", iteration)
			break
		}
		if p.TestCount() >= maxTests {
			o.log.Warn("Reached max tests; stopping", "max_tests", maxTests)
			break
		}

		added := 0
		for _, gen := range generators {
			kind := gen.Kind()
			if invoked[kind] && !repeatable[kind] {
				continue
			}
			if !snap.Below(dimensions[kind], opts.Goals) {
				continue
			}
			invoked[kind] = true

			tests := gen.Generate(g, opts.Generator)
			n := appendSuite(p, kind, iteration, tests, maxTests)
			o.log.Debug("Generator ran", "generator", kind, "iteration", iteration, "generated", len(tests), "added", n)
			added += n
		}

		snap = coverage.Compute(g, p)
		if added == 0 {
			iteration++
			break
		}
	}

	p.Timestamp = time.Now().UTC()
	o.log.Info("Plan generated",
		"tests", p.TestCount(),
		"suites", len(p.Suites),
		"routes_pct", snap.Routes.Percentage,
		"elements_pct", snap.Elements.Percentage,
		"forms_pct", snap.Forms.Percentage,
		"assertions", snap.Assertions,
		"flows", snap.Flows,
	)
	return &Result{Plan: p, Coverage: snap, Iterations: iteration}, nil
}

// appendSuite adds the tests not already in p as a new suite, truncated to
// keep the plan within maxTests. It returns the number of tests added.
func appendSuite(p *plan.Plan, kind generator.Kind, iteration int, tests []plan.TestCase, maxTests int) int {
	room := maxTests - p.TestCount()
	seen := make(map[string]bool)
	var fresh []plan.TestCase
	for _, tc := range tests {
		if len(fresh) >= room {
			break
		}
		if seen[tc.ID] || p.HasTest(tc.ID) {
			continue
		}
		seen[tc.ID] = true
		fresh = append(fresh, tc)
	}
	if len(fresh) == 0 {
		return 0
	}

	info := suiteInfo[kind]
	name := info.name
	if repeatable[kind] {
		name = fmt.Sprintf("%s (iter %d)", name, iteration)
	}
	p.Suites = append(p.Suites, plan.Suite{
		ID:       "suite-" + graph.HashString(fmt.Sprintf("%s|%d", kind, iteration)),
		Name:     name,
		Category: info.category,
		Tests:    fresh,
		Tags:     info.tags,
	})
	return len(fresh)
}
