package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultMaxDepth, cfg.Mapping.MaxDepth)
	assert.Equal(t, DefaultMaxPages, cfg.Mapping.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Mapping.Timeout)
	assert.Equal(t, "networkidle", cfg.Mapping.WaitUntil)
	assert.Equal(t, CoverageTargets{Routes: 90, Elements: 70, Forms: 80, Assertions: 2, Flows: 3}, cfg.Generation.CoverageTargets)
	assert.Equal(t, DefaultWorkers, cfg.Execution.Workers)
	assert.Equal(t, DefaultRetries, cfg.Execution.Retries)
	assert.Equal(t, DefaultKBPath, cfg.Learning.KBPath)
	assert.Equal(t, "info", cfg.Logger.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webprobe.yaml")
	yaml := `
app_name: shop
base_url: https://shop.test
mapping:
  max_depth: 5
  timeout: 10s
generation:
  types: [smoke, crud]
auth:
  strategy: cookie
  cookies:
    - name: session
      value: abc
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("WEBPROBE_EXECUTION_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.AppName)
	assert.Equal(t, 5, cfg.Mapping.MaxDepth)
	assert.Equal(t, 10*time.Second, cfg.Mapping.Timeout)
	assert.Equal(t, DefaultMaxPages, cfg.Mapping.MaxPages)
	assert.Equal(t, []string{"smoke", "crud"}, cfg.Generation.Types)
	assert.Equal(t, 8, cfg.Execution.Workers)
	require.Len(t, cfg.Auth.Cookies, 1)
	assert.Equal(t, "session", cfg.Auth.Cookies[0].Name)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "/app" }, ErrInvalidBaseURL},
		{"bad method", func(c *Config) { c.Mapping.Method = "spider" }, ErrInvalidEnum},
		{"bad wait", func(c *Config) { c.Mapping.WaitUntil = "idle" }, ErrInvalidEnum},
		{"zero pages", func(c *Config) { c.Mapping.MaxPages = 0 }, ErrInvalidRange},
		{"target over 100", func(c *Config) { c.Generation.CoverageTargets.Forms = 120 }, ErrInvalidRange},
		{"unknown generator", func(c *Config) { c.Generation.Types = []string{"fuzz"} }, ErrInvalidEnum},
		{"zero workers", func(c *Config) { c.Execution.Workers = 0 }, ErrInvalidRange},
		{"bad auth", func(c *Config) { c.Auth.Strategy = "oauth" }, ErrInvalidEnum},
		{"bad ai mode", func(c *Config) { c.AIMode = "yolo" }, ErrInvalidEnum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDefault_FormVariantsOn(t *testing.T) {
	v := Default().Generation.FormVariants
	assert.True(t, v.Enabled)
	assert.True(t, v.IncludeInvalid)
	assert.True(t, v.IncludeBoundary)
}

func TestApplyAIMode(t *testing.T) {
	base := Default()

	assert.Same(t, base, ApplyAIMode(base, AIModeOff))

	assist := ApplyAIMode(base, AIModeAssist)
	assert.True(t, assist.Mapping.DeepFormExtraction)
	assert.True(t, assist.Generation.FormVariants.IncludeInvalid)
	assert.False(t, assist.Generation.FormVariants.IncludeBoundary)
	assert.True(t, assist.Learning.AutoHeal)
	assert.InDelta(t, 0.85, assist.Learning.AutoHealConfidenceThreshold, 1e-9)
	assert.Equal(t, base.Generation.CoverageTargets, assist.Generation.CoverageTargets)

	auto := ApplyAIMode(base, AIModeAutopilot)
	assert.True(t, auto.Generation.FormVariants.IncludeBoundary)
	assert.InDelta(t, 0.75, auto.Learning.AutoHealConfidenceThreshold, 1e-9)
	assert.Equal(t, CoverageTargets{Routes: 90, Elements: 75, Forms: 85, Assertions: 3, Flows: 5}, auto.Generation.CoverageTargets)
	assert.True(t, auto.Execution.Parallel)

	// base untouched
	assert.False(t, base.Mapping.DeepFormExtraction)
}
