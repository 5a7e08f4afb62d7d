package plan

import "time"

// Status is the outcome of a test.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusFlaky Status = "flaky"
)

// RunResult aggregates the outcome of executing a plan.
type RunResult struct {
	RunID     string        `json:"runId"`
	Timestamp time.Time     `json:"timestamp"`
	Config    RunConfig     `json:"config"`
	Suites    []SuiteResult `json:"suites"`
	Summary   Summary       `json:"summary"`
	Artifacts Artifacts     `json:"artifacts"`
	Duration  int64         `json:"duration"` // milliseconds
}

// RunConfig records the execution settings of a run.
type RunConfig struct {
	Driver   string `json:"driver"`
	Parallel bool   `json:"parallel"`
	Workers  int    `json:"workers"`
	Retries  int    `json:"retries"`
	Timeout  int64  `json:"timeout"` // milliseconds
	Headless bool   `json:"headless"`
	BaseURL  string `json:"baseUrl,omitempty"`
}

// SuiteResult is the outcome of one suite.
type SuiteResult struct {
	SuiteID   string       `json:"suiteId"`
	SuiteName string       `json:"suiteName"`
	Tests     []TestResult `json:"tests"`
	Duration  int64        `json:"duration"`
	Passed    int          `json:"passed"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Flaky     int          `json:"flaky"`
}

// TestResult is the outcome of one test case.
type TestResult struct {
	TestID         string         `json:"testId"`
	TestName       string         `json:"testName"`
	Status         Status         `json:"status"`
	Duration       int64          `json:"duration"`
	Retries        int            `json:"retries"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	Error          *ErrorDetails  `json:"error,omitempty"`
	HealedSelector []HealedTarget `json:"healedSelectors,omitempty"`
	Artifacts      []string       `json:"artifacts"`
	Steps          []StepResult   `json:"steps,omitempty"`
}

// ErrorDetails describes why a test failed.
type ErrorDetails struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	SuggestedFix string `json:"suggestedFix,omitempty"`
	Selector     string `json:"selector,omitempty"`
	Screenshot   string `json:"screenshot,omitempty"`
}

// HealedTarget records a selector substituted during a run.
type HealedTarget struct {
	StepID   string `json:"stepId"`
	Original string `json:"original"`
	Healed   string `json:"healed"`
}

// StepResult is the outcome of a single step.
type StepResult struct {
	StepID   string `json:"stepId"`
	Action   Action `json:"action"`
	Status   Status `json:"status"`
	Duration int64  `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// Summary counts outcomes across all suites.
type Summary struct {
	TotalTests int     `json:"totalTests"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Flaky      int     `json:"flaky"`
	PassRate   float64 `json:"passRate"`
	Duration   int64   `json:"duration"`
}

// Artifacts lists files written during a run.
type Artifacts struct {
	Screenshots []string `json:"screenshots"`
	Replays     []string `json:"replays"`
	Metrics     string   `json:"metrics,omitempty"`
}

// Failed reports whether any test failed.
func (r *RunResult) Failed() bool {
	return r.Summary.Failed > 0
}

// Tally recomputes suite counters from the test results.
func (s *SuiteResult) Tally() {
	s.Passed, s.Failed, s.Skipped, s.Flaky = 0, 0, 0, 0
	for _, t := range s.Tests {
		switch t.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusSkip:
			s.Skipped++
		case StatusFlaky:
			s.Flaky++
		}
	}
}

// Summarize recomputes the run summary from suite results.
func (r *RunResult) Summarize() {
	sum := Summary{Duration: r.Duration}
	for i := range r.Suites {
		s := &r.Suites[i]
		s.Tally()
		sum.TotalTests += len(s.Tests)
		sum.Passed += s.Passed
		sum.Failed += s.Failed
		sum.Skipped += s.Skipped
		sum.Flaky += s.Flaky
	}
	if sum.TotalTests > 0 {
		sum.PassRate = float64(sum.Passed+sum.Flaky) / float64(sum.TotalTests) * 100
	}
	r.Summary = sum
}
