package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/webprobe/internal/knowledge"
)

func TestWriteFailureSummary(t *testing.T) {
	ctx := context.Background()
	kb, err := knowledge.Open(ctx, filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	defer kb.Close()

	for _, f := range []knowledge.TestFailure{
		{TestID: "t1", TestName: "Login", ErrorType: "timeout", ErrorMessage: "timed out after 5s"},
		{TestID: "t2", TestName: "Save", ErrorType: "timeout", ErrorMessage: "timed out after 5s"},
		{TestID: "t3", TestName: "Menu", ErrorType: "selector", ErrorMessage: "element not found"},
	} {
		_, err := kb.RecordFailure(ctx, f)
		require.NoError(t, err)
	}
	for _, passed := range []bool{true, false, true} {
		require.NoError(t, kb.RecordTestRun(ctx, "t1", "Login", passed))
	}

	dir := filepath.Join(t.TempDir(), "results")
	sum, path, err := writeFailureSummary(ctx, kb, "run-1", dir, 0.1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-1-triage.json"), path)
	require.Len(t, sum.Clusters, 2)
	assert.Equal(t, 2, sum.Clusters[0].Count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got struct {
		RunID    string `json:"runId"`
		Clusters []struct {
			ErrorType string `json:"errorType"`
			Count     int    `json:"count"`
		} `json:"clusters"`
		Flaky []struct {
			TestID    string `json:"testId"`
			TotalRuns int    `json:"totalRuns"`
		} `json:"flaky"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Clusters, 2)
	assert.Equal(t, "timeout", got.Clusters[0].ErrorType)
	assert.Equal(t, "selector", got.Clusters[1].ErrorType)
	require.Len(t, got.Flaky, 1)
	assert.Equal(t, "t1", got.Flaky[0].TestID)
	assert.Equal(t, 3, got.Flaky[0].TotalRuns)
}

func TestSummarizeFailures_Empty(t *testing.T) {
	ctx := context.Background()
	kb, err := knowledge.Open(ctx, filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	defer kb.Close()

	sum, err := summarizeFailures(ctx, kb, 0.1)
	require.NoError(t, err)
	assert.Empty(t, sum.Clusters)
	assert.NotNil(t, sum.Flaky)
}
