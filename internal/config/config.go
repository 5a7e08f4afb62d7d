// Package config loads webprobe configuration from a YAML file, a .env file
// and WEBPROBE_ prefixed environment variables.
package config

import (
	"time"

	"github.com/v0xg/webprobe/internal/logger"
)

// Config is the complete webprobe configuration.
type Config struct {
	AppName    string           `mapstructure:"app_name"`
	BaseURL    string           `mapstructure:"base_url"`
	Framework  string           `mapstructure:"framework"`
	OutputDir  string           `mapstructure:"output_dir"`
	AIMode     AIMode           `mapstructure:"ai_mode"`
	Logger     logger.Config    `mapstructure:"logger"`
	Mapping    MappingConfig    `mapstructure:"mapping"`
	Generation GenerationConfig `mapstructure:"generation"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Auth       AuthConfig       `mapstructure:"auth"`
	AI         AIConfig         `mapstructure:"ai"`
}

// MappingConfig controls crawling.
type MappingConfig struct {
	Method             string        `mapstructure:"method"` // static, dynamic or hybrid
	MaxDepth           int           `mapstructure:"max_depth"`
	MaxPages           int           `mapstructure:"max_pages"`
	Timeout            time.Duration `mapstructure:"timeout"`
	WaitUntil          string        `mapstructure:"wait_until"`
	CaptureScreenshots bool          `mapstructure:"capture_screenshots"`
	DeepFormExtraction bool          `mapstructure:"deep_form_extraction"`
}

// GenerationConfig controls test generation.
type GenerationConfig struct {
	Types           []string           `mapstructure:"types"`
	CoverageTargets CoverageTargets    `mapstructure:"coverage_targets"`
	MaxTests        int                `mapstructure:"max_tests"`
	Seed            int64              `mapstructure:"seed"`
	FormVariants    FormVariantsConfig `mapstructure:"form_variants"`
	Journey         JourneyConfig      `mapstructure:"journey"`
}

// CoverageTargets are the coverage goals of a generation run.
type CoverageTargets struct {
	Routes     float64 `mapstructure:"routes"`
	Elements   float64 `mapstructure:"elements"`
	Forms      float64 `mapstructure:"forms"`
	Assertions int     `mapstructure:"assertions"`
	Flows      int     `mapstructure:"flows"`
}

// FormVariantsConfig enables negative form tests.
type FormVariantsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IncludeInvalid  bool `mapstructure:"include_invalid"`
	IncludeBoundary bool `mapstructure:"include_boundary"`
}

// JourneyConfig bounds journey generation.
type JourneyConfig struct {
	MaxSteps    int `mapstructure:"max_steps"`
	MaxJourneys int `mapstructure:"max_journeys"`
}

// ExecutionConfig controls test execution.
type ExecutionConfig struct {
	Headless         bool          `mapstructure:"headless"`
	BrowserBin       string        `mapstructure:"browser_bin"`
	Parallel         bool          `mapstructure:"parallel"`
	Workers          int           `mapstructure:"workers"`
	Retries          int           `mapstructure:"retries"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ScreenshotOnFail bool          `mapstructure:"screenshot_on_fail"`
	ReplayOnFail     bool          `mapstructure:"replay_on_fail"`
	MetricsFile      string        `mapstructure:"metrics_file"`
}

// LearningConfig controls the knowledge base and selector healing.
type LearningConfig struct {
	Enabled                     bool    `mapstructure:"enabled"`
	KBPath                      string  `mapstructure:"kb_path"`
	AutoHeal                    bool    `mapstructure:"auto_heal"`
	AutoHealConfidenceThreshold float64 `mapstructure:"auto_heal_confidence_threshold"`
	TrackFlaky                  bool    `mapstructure:"track_flaky"`
	FlakyThreshold              float64 `mapstructure:"flaky_threshold"`
}

// AuthConfig selects and parameterizes the crawl auth strategy.
type AuthConfig struct {
	Strategy         string            `mapstructure:"strategy"` // none, cookie, storage, form or script
	LoginURL         string            `mapstructure:"login_url"`
	Username         string            `mapstructure:"username"`
	Password         string            `mapstructure:"password"`
	UsernameSelector string            `mapstructure:"username_selector"`
	PasswordSelector string            `mapstructure:"password_selector"`
	SubmitSelector   string            `mapstructure:"submit_selector"`
	SuccessURL       string            `mapstructure:"success_url"`
	Timeout          time.Duration     `mapstructure:"timeout"`
	Cookies          []CookieConfig    `mapstructure:"cookies"`
	Storage          map[string]string `mapstructure:"storage"`
	Script           string            `mapstructure:"script"`
}

// CookieConfig is a cookie injected before crawling.
type CookieConfig struct {
	Name   string `mapstructure:"name"`
	Value  string `mapstructure:"value"`
	Domain string `mapstructure:"domain"`
	Path   string `mapstructure:"path"`
}

// AIConfig selects the optional LLM triage advisor.
type AIConfig struct {
	Provider string `mapstructure:"provider"` // claude or openai
	Model    string `mapstructure:"model"`
}
