package config

import (
	"fmt"
	"math"
)

// AIMode raises extraction depth, form variants and healing aggressiveness.
type AIMode string

const (
	AIModeOff       AIMode = "off"
	AIModeAssist    AIMode = "assist"
	AIModeAutopilot AIMode = "autopilot"
)

// ParseAIMode validates a mode name; empty means off.
func ParseAIMode(s string) (AIMode, error) {
	switch AIMode(s) {
	case "", AIModeOff:
		return AIModeOff, nil
	case AIModeAssist, AIModeAutopilot:
		return AIMode(s), nil
	default:
		return "", fmt.Errorf("ai mode %q: %w", s, ErrInvalidEnum)
	}
}

// ApplyAIMode returns a copy of cfg adjusted for mode. Off returns cfg as is.
func ApplyAIMode(cfg *Config, mode AIMode) *Config {
	if mode == AIModeOff || mode == "" {
		return cfg
	}

	out := *cfg
	out.AIMode = mode
	out.Mapping.DeepFormExtraction = true
	out.Generation.FormVariants = FormVariantsConfig{
		Enabled:         true,
		IncludeInvalid:  true,
		IncludeBoundary: mode == AIModeAutopilot,
	}
	out.Learning.AutoHeal = true

	threshold := 0.85
	if mode == AIModeAutopilot {
		threshold = 0.75
	}
	out.Learning.AutoHealConfidenceThreshold = math.Min(cfg.Learning.AutoHealConfidenceThreshold, threshold)

	if mode == AIModeAutopilot {
		t := &out.Generation.CoverageTargets
		t.Routes = math.Max(t.Routes, 85)
		t.Elements = math.Max(t.Elements, 75)
		t.Forms = math.Max(t.Forms, 85)
		t.Assertions = max(t.Assertions, 3)
		t.Flows = max(t.Flows, 5)

		out.Execution.Parallel = true
		out.Execution.Workers = max(out.Execution.Workers, 2)
	}

	out.Generation.Types = append([]string(nil), cfg.Generation.Types...)
	return &out
}
