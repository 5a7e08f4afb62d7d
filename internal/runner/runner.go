// Package runner executes test plans against a page driver. Suites run
// sequentially on one browser or in parallel across workers, each test with
// an outer retry loop and inner per-step selector healing.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/webprobe/internal/driver"
	"github.com/v0xg/webprobe/internal/healing"
	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/logger"
	"github.com/v0xg/webprobe/internal/metrics"
	"github.com/v0xg/webprobe/internal/plan"
)

// DriverName is recorded in run results.
const DriverName = "rod"

// Options configures execution.
type Options struct {
	BaseURL          string
	Parallel         bool
	Workers          int
	Retries          int
	Timeout          time.Duration // per action
	WaitUntil        driver.WaitUntil
	Headless         bool
	ArtifactsDir     string
	ScreenshotOnFail bool
	ReplayOnFail     bool
	MetricsFile      string

	// Knowledge enables learning. Nil disables healing and run history.
	Knowledge *knowledge.Store
	AutoHeal  bool
	// HealThreshold skips healing for descriptors whose confidence is
	// below it.
	HealThreshold float64
	Metrics       *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.WaitUntil == "" {
		o.WaitUntil = driver.WaitLoad
	}
	if o.ArtifactsDir == "" {
		o.ArtifactsDir = filepath.Join(".webprobe", "artifacts")
	}
	return o
}

// Runner executes plans.
type Runner struct {
	launch  driver.Launcher
	opts    Options
	healer  *healing.Healer
	metrics *metrics.Recorder
	log     logger.Interface
}

// New creates a runner that starts browsers with launch.
func New(launch driver.Launcher, opts Options, log logger.Interface) *Runner {
	opts = opts.withDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	r := &Runner{launch: launch, opts: opts, metrics: opts.Metrics, log: log}
	if opts.Knowledge != nil && opts.AutoHeal {
		r.healer = healing.New(opts.Knowledge, log.With("component", "healing"))
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	return r
}

// suiteQueue hands out suites to workers in plan order.
type suiteQueue struct {
	mu     sync.Mutex
	next   int
	suites []plan.Suite
}

func (q *suiteQueue) pop() (int, plan.Suite, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next >= len(q.suites) {
		return 0, plan.Suite{}, false
	}
	i := q.next
	q.next++
	return i, q.suites[i], true
}

// Run executes every suite of p. Suites that fail catastrophically are
// logged and left out of the result.
func (r *Runner) Run(ctx context.Context, p *plan.Plan) (*plan.RunResult, error) {
	start := time.Now()
	runID := "run-" + uuid.NewString()
	log := r.log.With("run_id", runID)

	workers := 1
	if r.opts.Parallel {
		workers = min(r.opts.Workers, len(p.Suites))
	}
	if workers < 1 {
		workers = 1
	}
	log.Info("Starting run", "suites", len(p.Suites), "tests", p.TestCount(), "workers", workers)

	queue := &suiteQueue{suites: p.Suites}
	slots := make([]*plan.SuiteResult, len(p.Suites))

	if workers == 1 {
		if err := r.worker(ctx, log, r.opts.ArtifactsDir, queue, slots); err != nil {
			return nil, err
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < workers; i++ {
			dir := filepath.Join(r.opts.ArtifactsDir, fmt.Sprintf("worker-%d", i))
			wlog := log.With("worker", i)
			g.Go(func() error {
				return r.worker(gctx, wlog, dir, queue, slots)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	result := &plan.RunResult{
		RunID:     runID,
		Timestamp: start,
		Config: plan.RunConfig{
			Driver:   DriverName,
			Parallel: workers > 1,
			Workers:  workers,
			Retries:  r.opts.Retries,
			Timeout:  r.opts.Timeout.Milliseconds(),
			Headless: r.opts.Headless,
			BaseURL:  r.opts.BaseURL,
		},
		Suites: make([]plan.SuiteResult, 0, len(slots)),
		Artifacts: plan.Artifacts{
			Screenshots: []string{},
			Replays:     []string{},
		},
	}
	for _, s := range slots {
		if s == nil {
			continue
		}
		result.Suites = append(result.Suites, *s)
		collectArtifacts(&result.Artifacts, s)
	}
	result.Duration = time.Since(start).Milliseconds()
	result.Summarize()

	r.metrics.ObserveRun(result)
	if r.opts.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(r.opts.MetricsFile); err != nil {
			log.Warn("Failed to write metrics", "path", r.opts.MetricsFile, "error", err)
		} else {
			result.Artifacts.Metrics = r.opts.MetricsFile
		}
	}

	log.Info("Run complete",
		"passed", result.Summary.Passed,
		"failed", result.Summary.Failed,
		"flaky", result.Summary.Flaky,
		"total", result.Summary.TotalTests,
		"duration_ms", result.Duration,
	)
	return result, nil
}

// worker drains the queue with one lazily launched browser. A suite that
// cannot run is excluded and the worker moves on.
func (r *Runner) worker(ctx context.Context, log logger.Interface, dir string, queue *suiteQueue, slots []*plan.SuiteResult) error {
	var browser driver.Browser
	defer func() {
		if browser != nil {
			if err := browser.Close(); err != nil {
				log.Debug("Failed to close browser", "error", err)
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		i, suite, ok := queue.pop()
		if !ok {
			return nil
		}

		if browser == nil {
			b, err := r.launch(ctx)
			if err != nil {
				log.Error("Suite excluded: browser launch failed", "suite", suite.Name, "error", err)
				r.metrics.ObserveSuiteError()
				continue
			}
			browser = b
		}

		log.Info("Executing suite", "suite", suite.Name, "tests", len(suite.Tests))
		res, err := r.runSuite(ctx, browser, suite, dir, log)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Error("Suite excluded", "suite", suite.Name, "error", err)
			r.metrics.ObserveSuiteError()
			continue
		}
		slots[i] = res
		log.Info("Suite complete", "suite", suite.Name, "passed", res.Passed, "failed", res.Failed, "flaky", res.Flaky)
	}
}

func (r *Runner) runSuite(ctx context.Context, browser driver.Browser, suite plan.Suite, dir string, log logger.Interface) (res *plan.SuiteResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("suite %s panicked: %v", suite.Name, rec)
		}
	}()

	res = &plan.SuiteResult{
		SuiteID:   suite.ID,
		SuiteName: suite.Name,
		Tests:     make([]plan.TestResult, 0, len(suite.Tests)),
	}
	for _, tc := range suite.Tests {
		tr, err := r.runTest(ctx, browser, tc, dir, log)
		if err != nil {
			return nil, err
		}
		r.metrics.ObserveTest(suite.Name, tr)
		res.Tests = append(res.Tests, tr)
		res.Duration += tr.Duration
	}
	res.Tally()
	return res, nil
}

func collectArtifacts(a *plan.Artifacts, s *plan.SuiteResult) {
	for _, t := range s.Tests {
		for _, path := range t.Artifacts {
			switch {
			case strings.HasSuffix(path, ".gif"):
				a.Replays = append(a.Replays, path)
			case strings.HasSuffix(path, ".png"):
				a.Screenshots = append(a.Screenshots, path)
			}
		}
	}
}
