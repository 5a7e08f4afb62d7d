// Package plan defines generated test plans and the results of running them.
package plan

import (
	"time"
)

// Version is written to every generated plan.
const Version = "1.0.0"

// Action is a step action.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionClick      Action = "click"
	ActionFill       Action = "fill"
	ActionSelect     Action = "select"
	ActionWait       Action = "wait"
	ActionScreenshot Action = "screenshot"
	ActionCheck      Action = "check"
	ActionHover      Action = "hover"
)

// Interacts reports whether the action operates on an element.
func (a Action) Interacts() bool {
	switch a {
	case ActionClick, ActionFill, ActionSelect, ActionCheck, ActionHover:
		return true
	}
	return false
}

// AssertionType is the kind of check an assertion performs.
type AssertionType string

const (
	AssertVisible   AssertionType = "visible"
	AssertHidden    AssertionType = "hidden"
	AssertText      AssertionType = "text"
	AssertValue     AssertionType = "value"
	AssertURL       AssertionType = "url"
	AssertCount     AssertionType = "count"
	AssertExists    AssertionType = "exists"
	AssertAttribute AssertionType = "attribute"
)

// Operator compares an actual value against Assertion.Expected.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
	OpGT       Operator = "gt"
	OpLT       Operator = "lt"
)

// Priority ranks test cases for triage.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Plan is a generated set of test suites.
type Plan struct {
	Version   string    `json:"version"`
	AppName   string    `json:"appName"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Suites    []Suite   `json:"suites"`
	Config    Config    `json:"config"`
}

// Config records how a plan was generated and should be executed.
type Config struct {
	Seed             int64          `json:"seed"`
	CoverageTarget   CoverageTarget `json:"coverageTarget"`
	FlakyRetries     int            `json:"flakyRetries"`
	ScreenshotOnFail bool           `json:"screenshotOnFail"`
}

// CoverageTarget holds optional goals per coverage dimension. A nil
// dimension is not checked.
type CoverageTarget struct {
	Routes     *float64 `json:"routes,omitempty"`
	Elements   *float64 `json:"elements,omitempty"`
	Forms      *float64 `json:"forms,omitempty"`
	Assertions *int     `json:"assertions,omitempty"`
	Flows      *int     `json:"flows,omitempty"`
}

// Suite groups test cases.
type Suite struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Tests    []TestCase `json:"tests"`
	Tags     []string   `json:"tags"`
}

// TestCase is an ordered flow of steps followed by assertions.
type TestCase struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	Flow              []Step      `json:"flow"`
	Assertions        []Assertion `json:"assertions"`
	Tags              []string    `json:"tags"`
	Priority          Priority    `json:"priority"`
	EstimatedDuration int64       `json:"estimatedDuration,omitempty"` // milliseconds
}

// Step is a single action of a test flow.
type Step struct {
	ID          string       `json:"id"`
	Action      Action       `json:"action"`
	Target      *Target      `json:"target,omitempty"`
	Value       string       `json:"value,omitempty"`
	Options     *StepOptions `json:"options,omitempty"`
	Description string       `json:"description,omitempty"`
}

// StepOptions tune the execution of a step.
type StepOptions struct {
	Timeout    int64  `json:"timeout,omitempty"` // milliseconds
	WaitFor    string `json:"waitFor,omitempty"`
	Retries    int    `json:"retries,omitempty"`
	Screenshot bool   `json:"screenshot,omitempty"`
}

// Assertion is a check evaluated after the flow completes.
type Assertion struct {
	Type        AssertionType `json:"type"`
	Target      Target        `json:"target"`
	Expected    string        `json:"expected,omitempty"`
	Operator    Operator      `json:"operator,omitempty"`
	Description string        `json:"description,omitempty"`
}

// TimeoutOr returns the step timeout, or def when none is set.
func (s Step) TimeoutOr(def time.Duration) time.Duration {
	if s.Options == nil || s.Options.Timeout <= 0 {
		return def
	}
	return time.Duration(s.Options.Timeout) * time.Millisecond
}

// TestCount returns the number of test cases across all suites.
func (p *Plan) TestCount() int {
	n := 0
	for _, s := range p.Suites {
		n += len(s.Tests)
	}
	return n
}

// AllTests returns every test case in suite order.
func (p *Plan) AllTests() []TestCase {
	out := make([]TestCase, 0, p.TestCount())
	for _, s := range p.Suites {
		out = append(out, s.Tests...)
	}
	return out
}

// HasTest reports whether a test with the given id exists in the plan.
func (p *Plan) HasTest(id string) bool {
	for _, s := range p.Suites {
		for _, tc := range s.Tests {
			if tc.ID == id {
				return true
			}
		}
	}
	return false
}
