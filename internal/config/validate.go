package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validation errors.
var (
	ErrInvalidBaseURL = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidRange   = errors.New("value out of range")
	ErrInvalidEnum    = errors.New("unsupported value")
)

var (
	mappingMethods = map[string]bool{"static": true, "dynamic": true, "hybrid": true}
	waitSignals    = map[string]bool{"networkidle": true, "load": true, "domcontentloaded": true}
	authStrategies = map[string]bool{"none": true, "cookie": true, "storage": true, "form": true, "script": true}
	generatorTypes = map[string]bool{"smoke": true, "form": true, "journey": true, "crud": true, "a11y": true}
)

// Validate rejects out-of-range and unsupported values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	if !mappingMethods[c.Mapping.Method] {
		return fmt.Errorf("mapping.method %q: %w", c.Mapping.Method, ErrInvalidEnum)
	}
	if !waitSignals[c.Mapping.WaitUntil] {
		return fmt.Errorf("mapping.wait_until %q: %w", c.Mapping.WaitUntil, ErrInvalidEnum)
	}
	if c.Mapping.MaxDepth < 0 {
		return fmt.Errorf("mapping.max_depth %d: %w", c.Mapping.MaxDepth, ErrInvalidRange)
	}
	if c.Mapping.MaxPages < 1 {
		return fmt.Errorf("mapping.max_pages %d: %w", c.Mapping.MaxPages, ErrInvalidRange)
	}
	if c.Mapping.Timeout <= 0 {
		return fmt.Errorf("mapping.timeout %s: %w", c.Mapping.Timeout, ErrInvalidRange)
	}

	for _, t := range c.Generation.Types {
		if !generatorTypes[t] {
			return fmt.Errorf("generation.types %q: %w", t, ErrInvalidEnum)
		}
	}
	targets := c.Generation.CoverageTargets
	for name, pct := range map[string]float64{"routes": targets.Routes, "elements": targets.Elements, "forms": targets.Forms} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("generation.coverage_targets.%s %.0f: %w", name, pct, ErrInvalidRange)
		}
	}
	if targets.Assertions < 0 || targets.Flows < 0 {
		return fmt.Errorf("generation.coverage_targets counts: %w", ErrInvalidRange)
	}
	if c.Generation.MaxTests < 1 {
		return fmt.Errorf("generation.max_tests %d: %w", c.Generation.MaxTests, ErrInvalidRange)
	}

	if c.Execution.Workers < 1 {
		return fmt.Errorf("execution.workers %d: %w", c.Execution.Workers, ErrInvalidRange)
	}
	if c.Execution.Retries < 0 {
		return fmt.Errorf("execution.retries %d: %w", c.Execution.Retries, ErrInvalidRange)
	}
	if c.Execution.Timeout <= 0 {
		return fmt.Errorf("execution.timeout %s: %w", c.Execution.Timeout, ErrInvalidRange)
	}

	if c.Learning.FlakyThreshold < 0 || c.Learning.FlakyThreshold > 1 {
		return fmt.Errorf("learning.flaky_threshold %.2f: %w", c.Learning.FlakyThreshold, ErrInvalidRange)
	}
	if !authStrategies[c.Auth.Strategy] {
		return fmt.Errorf("auth.strategy %q: %w", c.Auth.Strategy, ErrInvalidEnum)
	}
	if _, err := ParseAIMode(string(c.AIMode)); err != nil {
		return err
	}
	return nil
}
