package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WEBPROBE_MAPPING_MAX_DEPTH.
const EnvPrefix = "WEBPROBE"

// Default values.
const (
	DefaultMaxDepth       = 3
	DefaultMaxPages       = 50
	DefaultWorkers        = 4
	DefaultRetries        = 2
	DefaultMaxTests       = 200
	DefaultKBPath         = ".webprobe/knowledge.db"
	DefaultOutputDir      = ".webprobe"
	DefaultFlakyThreshold = 0.2
)

// Load reads configuration. When path is empty, webprobe.yaml is looked up in
// the working directory and in .webprobe/; a missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("webprobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultOutputDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "app")
	v.SetDefault("base_url", "http://localhost:3000")
	v.SetDefault("framework", "")
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("ai_mode", string(AIModeOff))

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")

	v.SetDefault("mapping.method", "dynamic")
	v.SetDefault("mapping.max_depth", DefaultMaxDepth)
	v.SetDefault("mapping.max_pages", DefaultMaxPages)
	v.SetDefault("mapping.timeout", "30s")
	v.SetDefault("mapping.wait_until", "networkidle")
	v.SetDefault("mapping.capture_screenshots", false)
	v.SetDefault("mapping.deep_form_extraction", false)

	v.SetDefault("generation.types", []string{"smoke", "form", "journey"})
	v.SetDefault("generation.coverage_targets.routes", 90)
	v.SetDefault("generation.coverage_targets.elements", 70)
	v.SetDefault("generation.coverage_targets.forms", 80)
	v.SetDefault("generation.coverage_targets.assertions", 2)
	v.SetDefault("generation.coverage_targets.flows", 3)
	v.SetDefault("generation.max_tests", DefaultMaxTests)
	v.SetDefault("generation.seed", 1)
	v.SetDefault("generation.form_variants.enabled", true)
	v.SetDefault("generation.form_variants.include_invalid", true)
	v.SetDefault("generation.form_variants.include_boundary", true)
	v.SetDefault("generation.journey.max_steps", 5)
	v.SetDefault("generation.journey.max_journeys", 10)

	v.SetDefault("execution.headless", true)
	v.SetDefault("execution.browser_bin", "")
	v.SetDefault("execution.parallel", false)
	v.SetDefault("execution.workers", DefaultWorkers)
	v.SetDefault("execution.retries", DefaultRetries)
	v.SetDefault("execution.timeout", "30s")
	v.SetDefault("execution.screenshot_on_fail", true)
	v.SetDefault("execution.replay_on_fail", false)
	v.SetDefault("execution.metrics_file", "")

	v.SetDefault("learning.enabled", true)
	v.SetDefault("learning.kb_path", DefaultKBPath)
	v.SetDefault("learning.auto_heal", false)
	v.SetDefault("learning.auto_heal_confidence_threshold", 0.85)
	v.SetDefault("learning.track_flaky", true)
	v.SetDefault("learning.flaky_threshold", DefaultFlakyThreshold)

	v.SetDefault("auth.strategy", "none")
	v.SetDefault("auth.login_url", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.username_selector", `input[name="username"], input[type="email"]`)
	v.SetDefault("auth.password_selector", `input[type="password"]`)
	v.SetDefault("auth.submit_selector", `button[type="submit"]`)
	v.SetDefault("auth.success_url", "")
	v.SetDefault("auth.timeout", "10s")
	v.SetDefault("auth.script", "")

	v.SetDefault("ai.provider", "claude")
	v.SetDefault("ai.model", "")
}
