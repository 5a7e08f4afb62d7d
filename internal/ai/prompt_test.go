package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/triage"
)

func TestBuildUserPrompt(t *testing.T) {
	failures := make([]knowledge.TestFailure, 0, 7)
	for i := range 7 {
		failures = append(failures, knowledge.TestFailure{
			TestID:       fmt.Sprintf("t%d", i),
			TestName:     fmt.Sprintf("Test %d", i),
			Route:        "/checkout",
			Selector:     "#pay",
			ErrorMessage: "locate #pay: element not found",
		})
	}
	report := Report{
		Clusters: []triage.FailureCluster{{
			ErrorType:    triage.ErrorSelector,
			Count:        len(failures),
			Failures:     failures,
			SuggestedFix: triage.SuggestFix(triage.ErrorSelector),
		}},
		Flaky: []knowledge.FlakyTest{{TestID: "journey-1", TestName: "Journey", TotalRuns: 10, Failures: 3, FlakinessScore: 0.3}},
	}

	prompt, err := buildUserPrompt(report)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(prompt, "Failure report:\n"))

	var doc promptReport
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(prompt, "Failure report:\n")), &doc))
	require.Len(t, doc.Clusters, 1)
	assert.Equal(t, "selector", doc.Clusters[0].ErrorType)
	assert.Equal(t, 7, doc.Clusters[0].Count)
	assert.Len(t, doc.Clusters[0].Samples, maxSamples)
	assert.Equal(t, "#pay", doc.Clusters[0].Samples[0].Selector)
	require.Len(t, doc.Flaky, 1)
	assert.Equal(t, "journey-1", doc.Flaky[0].TestID)
	assert.InDelta(t, 0.3, doc.Flaky[0].FlakinessScore, 1e-9)
}

func TestParseAdviceJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
		wantErr  string
	}{
		{
			name:     "bare array",
			response: `[{"errorType":"timeout","diagnosis":"slow API","actions":["wait for idle"],"confidence":0.7}]`,
			want:     1,
		},
		{
			name:     "wrapped in prose",
			response: "Here is my analysis:\n```json\n[{\"errorType\":\"selector\",\"diagnosis\":\"ids are generated\",\"actions\":[]}]\n```\nGood luck.",
			want:     1,
		},
		{
			name:     "brackets inside strings",
			response: `Sure. [{"errorType":"selector","diagnosis":"uses [data-id] which changes]","actions":["a"]}, {"errorType":"flaky","testId":"x","diagnosis":"d","actions":[]}] done`,
			want:     2,
		},
		{name: "no array", response: "I could not find anything.", wantErr: "no JSON array"},
		{name: "unterminated", response: `[{"errorType":"timeout"`, wantErr: "no matching closing bracket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advice, err := parseAdviceJSON(tt.response)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, advice, tt.want)
		})
	}
}

func TestParseAdviceJSON_Fields(t *testing.T) {
	advice, err := parseAdviceJSON(`[{"errorType":"flaky","testId":"journey-3","diagnosis":"async badge","actions":["wait","assert later"],"confidence":0.6}]`)
	require.NoError(t, err)
	assert.Equal(t, []Advice{{
		ErrorType:  "flaky",
		TestID:     "journey-3",
		Diagnosis:  "async badge",
		Actions:    []string{"wait", "assert later"},
		Confidence: 0.6,
	}}, advice)
}

func TestNewAdvisor(t *testing.T) {
	t.Setenv("WEBPROBE_ANTHROPIC_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("WEBPROBE_OPENAI_KEY", "test-key")

	_, err := NewAdvisor("claude", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	adv, err := NewAdvisor("openai", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", adv.(*OpenAIAdvisor).model)

	_, err = NewAdvisor("llama", "")
	assert.ErrorContains(t, err, "unknown provider")

	// Empty reports never reach the API.
	advice, err := adv.Advise(context.Background(), Report{})
	require.NoError(t, err)
	assert.Nil(t, advice)
}
