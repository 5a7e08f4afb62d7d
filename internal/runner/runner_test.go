package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/driver/drivertest"
	"github.com/v0xg/webprobe/internal/graph"
	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/logger"
	"github.com/v0xg/webprobe/internal/metrics"
	"github.com/v0xg/webprobe/internal/plan"
)

const base = "http://app.test"

func testSite() (*drivertest.Site, *drivertest.Element) {
	site := drivertest.NewSite()
	next := &drivertest.Element{Tag: "a", Text: "Next", Href: "/next"}
	site.Add(base+"/", &drivertest.Page{
		Selectors: map[string]*drivertest.Element{
			"#go":       next,
			"#email":    {Tag: "input", Attributes: map[string]string{"type": "email"}},
			"#save-btn": {Tag: "button", Text: "Save"},
		},
	})
	site.Add(base+"/next", &drivertest.Page{
		Selectors: map[string]*drivertest.Element{
			"h1": {Tag: "h1", Text: "Next page"},
		},
	})
	return site, next
}

func navigate(id, path string) plan.Step {
	return plan.Step{ID: id, Action: plan.ActionNavigate, Target: plan.Raw(path)}
}

func click(id, selector string) plan.Step {
	return plan.Step{ID: id, Action: plan.ActionClick, Target: plan.Raw(selector)}
}

func suite(name string, tests ...plan.TestCase) plan.Suite {
	return plan.Suite{ID: strings.ToLower(name), Name: name, Tests: tests}
}

func nextPageTest(id string) plan.TestCase {
	return plan.TestCase{
		ID:   id,
		Name: "Open next page " + id,
		Flow: []plan.Step{navigate("s1", "/"), click("s2", "#go")},
		Assertions: []plan.Assertion{
			{Type: plan.AssertURL, Expected: "/next"},
			{Type: plan.AssertVisible, Target: plan.Target{Kind: plan.TargetRaw, Selector: "h1"}},
		},
	}
}

func missingTest(id string) plan.TestCase {
	return plan.TestCase{
		ID:   id,
		Name: "Click missing " + id,
		Flow: []plan.Step{navigate("s1", "/"), click("s2", "#missing")},
	}
}

func openKnowledge(t *testing.T) *knowledge.Store {
	t.Helper()
	kb, err := knowledge.Open(context.Background(), filepath.Join(t.TempDir(), "kb", "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kb.Close() })
	return kb
}

func run(t *testing.T, launch driver.Launcher, opts Options, p *plan.Plan) *plan.RunResult {
	t.Helper()
	opts.BaseURL = base
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = t.TempDir()
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	res, err := New(launch, opts, logger.NewNop()).Run(context.Background(), p)
	require.NoError(t, err)
	return res
}

func TestRun_Sequential(t *testing.T) {
	site, next := testSite()
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", nextPageTest("t1"))}}

	res := run(t, site.Launcher(), Options{}, p)

	assert.True(t, strings.HasPrefix(res.RunID, "run-"))
	assert.Equal(t, DriverName, res.Config.Driver)
	assert.False(t, res.Config.Parallel)
	assert.Equal(t, 1, res.Config.Workers)
	require.Len(t, res.Suites, 1)
	tr := res.Suites[0].Tests[0]
	assert.Equal(t, plan.StatusPass, tr.Status, "error: %+v", tr.Error)
	assert.Zero(t, tr.Retries)
	require.Len(t, tr.Steps, 2)
	assert.Equal(t, plan.StatusPass, tr.Steps[1].Status)
	assert.Equal(t, 1, next.Clicks)
	assert.Equal(t, plan.Summary{TotalTests: 1, Passed: 1, PassRate: 100, Duration: res.Duration}, res.Summary)
	assert.False(t, res.Failed())
	assert.Equal(t, 1, site.Browsers)
	assert.Equal(t, 1, site.Closed)
}

func TestRun_RetryMarksFlaky(t *testing.T) {
	site, next := testSite()
	next.FailClicks = 1
	kb := openKnowledge(t)
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", nextPageTest("t1"))}}

	res := run(t, site.Launcher(), Options{Retries: 2, Knowledge: kb}, p)

	tr := res.Suites[0].Tests[0]
	assert.Equal(t, plan.StatusFlaky, tr.Status)
	assert.Equal(t, 1, tr.Retries)
	assert.Nil(t, tr.Error)
	assert.Equal(t, 1, res.Summary.Flaky)
	assert.InDelta(t, 100, res.Summary.PassRate, 1e-9)
	assert.False(t, res.Failed())

	failures, err := kb.FailuresByType(context.Background(), "overlay", 10)
	require.NoError(t, err)
	require.Len(t, failures, 1, "the failed attempt is recorded")
	assert.Equal(t, "t1", failures[0].TestID)
}

func TestRun_LearnsEveryAttempt(t *testing.T) {
	ctx := context.Background()
	site, next := testSite()
	kb := openKnowledge(t)
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", nextPageTest("t1"))}}

	// Two runs pass on retry, the third exhausts its retries.
	for i, failClicks := range []int{1, 1, 5} {
		next.FailClicks = failClicks
		res := run(t, site.Launcher(), Options{Retries: 2, Knowledge: kb}, p)
		want := plan.StatusFlaky
		if i == 2 {
			want = plan.StatusFail
		}
		require.Equal(t, want, res.Suites[0].Tests[0].Status, "run %d", i)
	}

	failures, err := kb.FailuresByType(ctx, "overlay", 20)
	require.NoError(t, err)
	assert.Len(t, failures, 5)

	flaky, err := kb.FlakyTests(ctx, 0.1, 10)
	require.NoError(t, err)
	require.Len(t, flaky, 1)
	assert.Equal(t, 3, flaky[0].TotalRuns)
	assert.Equal(t, 1, flaky[0].Failures, "runs that passed on retry count as passed")
	assert.InDelta(t, 1.0/3, flaky[0].FlakinessScore, 1e-9)
}

func TestRun_FailureRecorded(t *testing.T) {
	site, _ := testSite()
	kb := openKnowledge(t)
	dir := t.TempDir()
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", missingTest("t1"))}}

	res := run(t, site.Launcher(), Options{
		Retries:          1,
		Knowledge:        kb,
		ArtifactsDir:     dir,
		ScreenshotOnFail: true,
		ReplayOnFail:     true,
	}, p)

	tr := res.Suites[0].Tests[0]
	require.Equal(t, plan.StatusFail, tr.Status)
	assert.Equal(t, 1, tr.Retries)
	require.NotNil(t, tr.Error)
	assert.Equal(t, "selector", tr.Error.Type)
	assert.Equal(t, "#missing", tr.Error.Selector)
	assert.Contains(t, tr.Error.Message, "element not found")
	assert.NotEmpty(t, tr.Error.SuggestedFix)
	assert.Equal(t, filepath.Join(dir, "t1-fail.png"), tr.Error.Screenshot)
	assert.FileExists(t, tr.Error.Screenshot)
	assert.FileExists(t, filepath.Join(dir, "t1-replay.gif"))
	assert.Equal(t, []string{filepath.Join(dir, "t1-fail.png")}, res.Artifacts.Screenshots)
	assert.Equal(t, []string{filepath.Join(dir, "t1-replay.gif")}, res.Artifacts.Replays)
	require.Len(t, tr.Steps, 2)
	assert.Equal(t, plan.StatusFail, tr.Steps[1].Status)
	assert.True(t, res.Failed())

	failures, err := kb.FailuresByType(context.Background(), "selector", 10)
	require.NoError(t, err)
	require.Len(t, failures, 2, "one row per attempt")
	assert.Equal(t, "t1", failures[0].TestID)
	assert.Equal(t, "/", failures[0].Route)
	assert.Equal(t, "#missing", failures[0].Selector)
}

func healTest(confidence float64) plan.TestCase {
	el := graph.ElementDescriptor{
		ID:         "el-save",
		Role:       "button",
		Selector:   graph.SelectorStrategy{Primary: "#old-save"},
		Attributes: map[string]string{"id": "save-btn"},
		Confidence: confidence,
	}
	return plan.TestCase{
		ID:   "t1",
		Name: "Save",
		Flow: []plan.Step{
			navigate("s1", "/"),
			{ID: "s2", Action: plan.ActionClick, Target: plan.Descriptor(el)},
		},
	}
}

func TestRun_HealsDescriptorTarget(t *testing.T) {
	site, _ := testSite()
	kb := openKnowledge(t)
	rec := metrics.New()
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", healTest(0.9))}}

	res := run(t, site.Launcher(), Options{Knowledge: kb, AutoHeal: true, HealThreshold: 0.5, Metrics: rec}, p)

	tr := res.Suites[0].Tests[0]
	require.Equal(t, plan.StatusPass, tr.Status, "error: %+v", tr.Error)
	assert.Equal(t, []plan.HealedTarget{{StepID: "s2", Original: "#old-save", Healed: "#save-btn"}}, tr.HealedSelector)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.HealAttempts.WithLabelValues("healed")), 0)

	sig, err := kb.GetSignature(context.Background(), "el-save")
	require.NoError(t, err)
	assert.Equal(t, "#save-btn", sig.PrimarySelector)
	assert.Contains(t, sig.AlternativeSelectors, "#old-save")
	assert.Equal(t, 1, sig.SuccessCount)
}

func TestRun_HealingSkippedBelowThreshold(t *testing.T) {
	site, _ := testSite()
	kb := openKnowledge(t)
	rec := metrics.New()
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", healTest(0.2))}}

	res := run(t, site.Launcher(), Options{Knowledge: kb, AutoHeal: true, HealThreshold: 0.5, Metrics: rec}, p)

	tr := res.Suites[0].Tests[0]
	assert.Equal(t, plan.StatusFail, tr.Status)
	assert.Empty(t, tr.HealedSelector)
	assert.Equal(t, "#old-save", tr.Error.Selector)
	assert.Zero(t, testutil.ToFloat64(rec.HealAttempts.WithLabelValues("healed")))
}

func TestRun_ParallelKeepsPlanOrder(t *testing.T) {
	site, _ := testSite()
	dir := t.TempDir()
	p := &plan.Plan{Suites: []plan.Suite{
		suite("A", nextPageTest("a1")),
		suite("B", missingTest("b1")),
		suite("C", nextPageTest("c1"), nextPageTest("c2")),
	}}

	res := run(t, site.Launcher(), Options{Parallel: true, Workers: 4, ArtifactsDir: dir, ScreenshotOnFail: true}, p)

	assert.True(t, res.Config.Parallel)
	assert.Equal(t, 3, res.Config.Workers)
	names := make([]string, 0, len(res.Suites))
	for _, s := range res.Suites {
		names = append(names, s.SuiteName)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
	assert.Equal(t, 4, res.Summary.TotalTests)
	assert.Equal(t, 3, res.Summary.Passed)
	assert.Equal(t, 1, res.Summary.Failed)
	assert.InDelta(t, 75, res.Summary.PassRate, 1e-9)

	require.Len(t, res.Artifacts.Screenshots, 1)
	shot := res.Artifacts.Screenshots[0]
	assert.True(t, strings.HasPrefix(filepath.Base(filepath.Dir(shot)), "worker-"), shot)
	assert.FileExists(t, shot)
	assert.LessOrEqual(t, site.Browsers, 3)
	assert.Equal(t, site.Browsers, site.Closed)
}

func TestRun_LaunchFailureExcludesSuite(t *testing.T) {
	site, _ := testSite()
	rec := metrics.New()
	calls := 0
	launch := func(ctx context.Context) (driver.Browser, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("chrome not found")
		}
		return site.Browser(), nil
	}
	p := &plan.Plan{Suites: []plan.Suite{suite("A", nextPageTest("a1")), suite("B", nextPageTest("b1"))}}

	res := run(t, launch, Options{Metrics: rec}, p)

	require.Len(t, res.Suites, 1)
	assert.Equal(t, "B", res.Suites[0].SuiteName)
	assert.Equal(t, 1, res.Summary.TotalTests)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.SuiteErrors), 0)
	assert.Equal(t, 2, calls)
}

func TestRun_ScreenshotStepAndMetricsFile(t *testing.T) {
	site, _ := testSite()
	dir := t.TempDir()
	metricsPath := filepath.Join(t.TempDir(), "metrics", "webprobe.prom")
	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", plan.TestCase{
		ID:   "t1",
		Name: "Capture home",
		Flow: []plan.Step{
			navigate("s1", "/"),
			{ID: "s2", Action: plan.ActionWait, Options: &plan.StepOptions{WaitFor: "networkidle", Timeout: 500}},
			{ID: "s3", Action: plan.ActionScreenshot, Value: "home"},
		},
	})}}

	res := run(t, site.Launcher(), Options{ArtifactsDir: dir, MetricsFile: metricsPath}, p)

	tr := res.Suites[0].Tests[0]
	require.Equal(t, plan.StatusPass, tr.Status, "error: %+v", tr.Error)
	assert.Equal(t, []string{filepath.Join(dir, "home.png")}, tr.Artifacts)
	assert.Equal(t, []string{filepath.Join(dir, "home.png")}, res.Artifacts.Screenshots)
	assert.Equal(t, metricsPath, res.Artifacts.Metrics)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `webprobe_tests_total{status="pass",suite="Smoke"} 1`)
}

func TestRun_ActionsApplyValues(t *testing.T) {
	site := drivertest.NewSite()
	email := &drivertest.Element{Tag: "input"}
	tier := &drivertest.Element{Tag: "select"}
	terms := &drivertest.Element{Tag: "input"}
	menu := &drivertest.Element{Tag: "nav"}
	site.Add(base+"/signup", &drivertest.Page{Selectors: map[string]*drivertest.Element{
		"#email": email, "#plan": tier, "#terms": terms, "nav": menu,
	}})
	p := &plan.Plan{Suites: []plan.Suite{suite("Forms", plan.TestCase{
		ID:   "t1",
		Name: "Sign up",
		Flow: []plan.Step{
			navigate("s1", "/signup"),
			{ID: "s2", Action: plan.ActionFill, Target: plan.Raw("#email"), Value: "test@example.com"},
			{ID: "s3", Action: plan.ActionSelect, Target: plan.Raw("#plan"), Value: "pro"},
			{ID: "s4", Action: plan.ActionCheck, Target: plan.Raw("#terms")},
			{ID: "s5", Action: plan.ActionHover, Target: plan.Raw("nav")},
			{ID: "s6", Action: plan.ActionWait, Target: plan.Raw("nav"), Options: &plan.StepOptions{WaitFor: "visible", Timeout: 500}},
		},
		Assertions: []plan.Assertion{
			{Type: plan.AssertValue, Target: plan.Target{Kind: plan.TargetRaw, Selector: "#email"}, Expected: "test@example.com"},
		},
	})}}

	res := run(t, site.Launcher(), Options{}, p)

	tr := res.Suites[0].Tests[0]
	require.Equal(t, plan.StatusPass, tr.Status, "error: %+v", tr.Error)
	assert.Equal(t, "test@example.com", email.Value)
	assert.Equal(t, "pro", tier.Selected)
	assert.True(t, terms.Checked)
	assert.True(t, menu.Hovered)
}

func TestRun_CancelledContext(t *testing.T) {
	site, _ := testSite()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &plan.Plan{Suites: []plan.Suite{suite("Smoke", nextPageTest("t1"))}}
	_, err := New(site.Launcher(), Options{BaseURL: base, ArtifactsDir: t.TempDir()}, nil).Run(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}
