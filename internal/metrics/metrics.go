// Package metrics records run statistics as Prometheus metrics and writes
// them in the node exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/v0xg/webprobe/internal/plan"
)

const namespace = "webprobe"

// Recorder holds the metrics of one process. Each recorder owns its
// registry so tests and repeated runs do not collide.
type Recorder struct {
	registry *prometheus.Registry

	TestsTotal    *prometheus.CounterVec
	TestDuration  *prometheus.HistogramVec
	Retries       prometheus.Counter
	HealAttempts  *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	SuiteErrors   prometheus.Counter
	PassRate      prometheus.Gauge
	RunDuration   prometheus.Gauge
}

// New returns a recorder with all metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		TestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Tests executed by final status",
		}, []string{"suite", "status"}),
		TestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Wall time of a test including retries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"status"}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_retries_total",
			Help:      "Retries spent across all tests",
		}),
		HealAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heal_attempts_total",
			Help:      "Selector healing attempts by outcome",
		}, []string{"outcome"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed tests by classified error type",
		}, []string{"error_type"}),
		SuiteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suite_errors_total",
			Help:      "Suites excluded from results after an execution error",
		}),
		PassRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pass_rate_percent",
			Help:      "Share of passed and flaky tests in the last run",
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveTest records a finished test.
func (r *Recorder) ObserveTest(suite string, res plan.TestResult) {
	r.TestsTotal.WithLabelValues(suite, string(res.Status)).Inc()
	r.TestDuration.WithLabelValues(string(res.Status)).Observe(float64(res.Duration) / 1000)
	if res.Retries > 0 {
		r.Retries.Add(float64(res.Retries))
	}
	if res.Error != nil && res.Status == plan.StatusFail {
		r.FailuresTotal.WithLabelValues(res.Error.Type).Inc()
	}
}

// ObserveHeal records one healing outcome.
func (r *Recorder) ObserveHeal(healed bool) {
	outcome := "exhausted"
	if healed {
		outcome = "healed"
	}
	r.HealAttempts.WithLabelValues(outcome).Inc()
}

// ObserveSuiteError records a suite dropped from the results.
func (r *Recorder) ObserveSuiteError() {
	r.SuiteErrors.Inc()
}

// ObserveRun records run level gauges from a summarized result.
func (r *Recorder) ObserveRun(res *plan.RunResult) {
	r.PassRate.Set(res.Summary.PassRate)
	r.RunDuration.Set(float64(res.Duration) / 1000)
}

// WriteTextfile writes all metrics to path, creating its directory.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
