package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxTokens = 2048

// maxSamples bounds the failures quoted per cluster.
const maxSamples = 5

const systemPrompt = `You are a test reliability engineer reviewing automated end-to-end browser test failures.

You will receive a JSON document with:
1. "clusters": unresolved failures grouped by error type (timeout, selector, navigation, detached, overlay, auth, network, assertion). Each cluster has a count, a generic suggested fix and sample failures with test name, route, selector and error message.
2. "flaky": tests that alternate between passing and failing, with their flakiness score (failed runs / total runs).

For every cluster and every flaky test, diagnose the most likely root cause and propose concrete remediation steps. Prefer specific advice (a stable selector strategy, an explicit wait, a fixture to reset state) over the generic suggested fix.

Output a JSON array. Each element has:
- "errorType": the cluster's error type, or "flaky" for a flaky test
- "testId": the test id (only for flaky tests)
- "diagnosis": one or two sentences on the likely root cause
- "actions": ordered list of remediation steps
- "confidence": number between 0 and 1

Example output:
[
  {"errorType": "selector", "diagnosis": "The checkout button lost its id after a redesign.", "actions": ["Target [data-testid=\"checkout\"] instead of #checkout-btn"], "confidence": 0.8},
  {"errorType": "flaky", "testId": "journey-3", "diagnosis": "The cart badge updates after an async request.", "actions": ["Wait for network idle before asserting the badge"], "confidence": 0.6}
]

Respond ONLY with the JSON array, no explanation or markdown.`

type promptFailure struct {
	TestName string `json:"testName"`
	Route    string `json:"route,omitempty"`
	Selector string `json:"selector,omitempty"`
	Message  string `json:"message"`
}

type promptCluster struct {
	ErrorType    string          `json:"errorType"`
	Count        int             `json:"count"`
	SuggestedFix string          `json:"suggestedFix"`
	Samples      []promptFailure `json:"samples"`
}

type promptFlaky struct {
	TestID         string  `json:"testId"`
	TestName       string  `json:"testName"`
	TotalRuns      int     `json:"totalRuns"`
	Failures       int     `json:"failures"`
	FlakinessScore float64 `json:"flakinessScore"`
}

type promptReport struct {
	Clusters []promptCluster `json:"clusters"`
	Flaky    []promptFlaky   `json:"flaky"`
}

func buildUserPrompt(report Report) (string, error) {
	doc := promptReport{
		Clusters: make([]promptCluster, 0, len(report.Clusters)),
		Flaky:    make([]promptFlaky, 0, len(report.Flaky)),
	}
	for _, c := range report.Clusters {
		pc := promptCluster{
			ErrorType:    string(c.ErrorType),
			Count:        c.Count,
			SuggestedFix: c.SuggestedFix,
		}
		for _, f := range c.Failures[:min(len(c.Failures), maxSamples)] {
			pc.Samples = append(pc.Samples, promptFailure{
				TestName: f.TestName,
				Route:    f.Route,
				Selector: f.Selector,
				Message:  f.ErrorMessage,
			})
		}
		doc.Clusters = append(doc.Clusters, pc)
	}
	for _, f := range report.Flaky {
		doc.Flaky = append(doc.Flaky, promptFlaky{
			TestID:         f.TestID,
			TestName:       f.TestName,
			TotalRuns:      f.TotalRuns,
			Failures:       f.Failures,
			FlakinessScore: f.FlakinessScore,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal failure report: %w", err)
	}
	return "Failure report:\n" + string(data), nil
}

// parseAdviceJSON extracts and parses a JSON array from a response that may
// contain surrounding text.
func parseAdviceJSON(response string) ([]Advice, error) {
	var advice []Advice
	if err := json.Unmarshal([]byte(response), &advice); err == nil {
		return advice, nil
	}

	start := strings.Index(response, "[")
	if start == -1 {
		return nil, errors.New("no JSON array found in response")
	}

	// Brackets inside strings are skipped so prose in a diagnosis cannot end
	// the array early.
	depth, end := 0, -1
	inString, escaped := false, false
	for i := start; i < len(response) && end == -1; i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end == -1 {
		return nil, errors.New("no matching closing bracket found")
	}

	if err := json.Unmarshal([]byte(response[start:end]), &advice); err != nil {
		return nil, fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return advice, nil
}
