// Package ai asks a language model to review clustered test failures and
// propose remediations beyond the built-in fix hints.
package ai

import (
	"context"
	"fmt"

	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/triage"
)

// Report is the failure history handed to an advisor.
type Report struct {
	Clusters []triage.FailureCluster
	Flaky    []knowledge.FlakyTest
}

// Empty reports whether there is nothing to review.
func (r Report) Empty() bool {
	return len(r.Clusters) == 0 && len(r.Flaky) == 0
}

// Advice is a model's assessment of one failure cluster or flaky test.
type Advice struct {
	ErrorType  string   `json:"errorType"`
	TestID     string   `json:"testId,omitempty"`
	Diagnosis  string   `json:"diagnosis"`
	Actions    []string `json:"actions"`
	Confidence float64  `json:"confidence"`
}

// Advisor reviews a failure report.
type Advisor interface {
	Advise(ctx context.Context, report Report) ([]Advice, error)
}

// NewAdvisor creates an advisor for the named provider.
func NewAdvisor(name, model string) (Advisor, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeAdvisor(model)
	case "openai", "gpt":
		return NewOpenAIAdvisor(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}
