package main

import (
	"context"
	"path/filepath"

	"github.com/v0xg/webprobe/internal/knowledge"
	"github.com/v0xg/webprobe/internal/plan"
	"github.com/v0xg/webprobe/internal/triage"
)

const flakyLimit = 20

// failureSummary is the triage view of the knowledge base after a run.
type failureSummary struct {
	RunID    string                  `json:"runId,omitempty"`
	Clusters []triage.FailureCluster `json:"clusters"`
	Flaky    []knowledge.FlakyTest   `json:"flaky"`
}

// summarizeFailures clusters unresolved failures and lists flaky tests.
func summarizeFailures(ctx context.Context, kb *knowledge.Store, threshold float64) (*failureSummary, error) {
	clusters, err := triage.Cluster(ctx, kb)
	if err != nil {
		return nil, err
	}
	flaky, err := kb.FlakyTests(ctx, threshold, flakyLimit)
	if err != nil {
		return nil, err
	}
	if clusters == nil {
		clusters = []triage.FailureCluster{}
	}
	if flaky == nil {
		flaky = []knowledge.FlakyTest{}
	}
	return &failureSummary{Clusters: clusters, Flaky: flaky}, nil
}

// writeFailureSummary saves the summary of a failed run as
// <dir>/<runID>-triage.json and returns its path.
func writeFailureSummary(ctx context.Context, kb *knowledge.Store, runID, dir string, threshold float64) (*failureSummary, string, error) {
	sum, err := summarizeFailures(ctx, kb, threshold)
	if err != nil {
		return nil, "", err
	}
	sum.RunID = runID
	path := filepath.Join(dir, runID+"-triage.json")
	if err := plan.Save(path, sum); err != nil {
		return nil, "", err
	}
	return sum, path, nil
}
