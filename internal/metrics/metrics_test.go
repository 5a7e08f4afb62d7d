package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/plan"
)

func TestRecorder_ObserveTest(t *testing.T) {
	r := New()

	r.ObserveTest("Smoke", plan.TestResult{Status: plan.StatusPass, Duration: 1200})
	r.ObserveTest("Smoke", plan.TestResult{Status: plan.StatusFlaky, Duration: 800, Retries: 1})
	r.ObserveTest("Forms", plan.TestResult{
		Status:   plan.StatusFail,
		Duration: 3000,
		Retries:  2,
		Error:    &plan.ErrorDetails{Type: "timeout"},
	})

	assert.InDelta(t, 1, testutil.ToFloat64(r.TestsTotal.WithLabelValues("Smoke", "pass")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.TestsTotal.WithLabelValues("Smoke", "flaky")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.TestsTotal.WithLabelValues("Forms", "fail")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(r.Retries), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.FailuresTotal.WithLabelValues("timeout")), 0)
}

func TestRecorder_HealAndRun(t *testing.T) {
	r := New()
	r.ObserveHeal(true)
	r.ObserveHeal(false)
	r.ObserveHeal(false)
	r.ObserveSuiteError()
	r.ObserveRun(&plan.RunResult{Duration: 4500, Summary: plan.Summary{PassRate: 75}})

	assert.InDelta(t, 1, testutil.ToFloat64(r.HealAttempts.WithLabelValues("healed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.HealAttempts.WithLabelValues("exhausted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.SuiteErrors), 0)
	assert.InDelta(t, 75, testutil.ToFloat64(r.PassRate), 0)
	assert.InDelta(t, 4.5, testutil.ToFloat64(r.RunDuration), 1e-9)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveTest("Smoke", plan.TestResult{Status: plan.StatusPass, Duration: 10})

	path := filepath.Join(t.TempDir(), "out", "webprobe.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `webprobe_tests_total{status="pass",suite="Smoke"} 1`)
	assert.Contains(t, string(data), "webprobe_test_duration_seconds_bucket")
}
