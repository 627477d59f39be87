package config

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates fatal errors from auto-corrected warnings.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether the config cannot be used.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// ValidateTiered checks the config. Values that would break the policy
// formulas are fatal; out-of-range tunables are clamped and reported as
// warnings.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if math.IsNaN(c.ServiceWeight) || c.ServiceWeight < 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("service_weight %v must be a non-negative number", c.ServiceWeight))
	}
	if math.IsNaN(c.MaxTotalSeconds) || c.MaxTotalSeconds <= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("max_total_seconds %v must be positive", c.MaxTotalSeconds))
	}
	if c.DelayThresholdSeconds < 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("delay_threshold_seconds %v must not be negative", c.DelayThresholdSeconds))
	}
	if c.DelayThresholdSeconds > c.PriorityThresholdSeconds {
		r.Fatals = append(r.Fatals, fmt.Errorf("delay_threshold_seconds %v exceeds priority_threshold_seconds %v",
			c.DelayThresholdSeconds, c.PriorityThresholdSeconds))
	}

	if c.SourceTimeoutSeconds < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("source_timeout_seconds %d is below minimum 1, clamping", c.SourceTimeoutSeconds))
		c.SourceTimeoutSeconds = 1
	} else if c.SourceTimeoutSeconds > 120 {
		r.Warnings = append(r.Warnings, fmt.Errorf("source_timeout_seconds %d exceeds maximum 120, clamping", c.SourceTimeoutSeconds))
		c.SourceTimeoutSeconds = 120
	}

	if c.SuggestedDelaySeconds < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("suggested_delay_seconds %d is below minimum 1, clamping", c.SuggestedDelaySeconds))
		c.SuggestedDelaySeconds = 1
	} else if c.SuggestedDelaySeconds > 300 {
		r.Warnings = append(r.Warnings, fmt.Errorf("suggested_delay_seconds %d exceeds maximum 300, clamping", c.SuggestedDelaySeconds))
		c.SuggestedDelaySeconds = 300
	}

	if c.BatchWorkers < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("batch_workers %d is below minimum 1, clamping", c.BatchWorkers))
		c.BatchWorkers = 1
	} else if c.BatchWorkers > 64 {
		r.Warnings = append(r.Warnings, fmt.Errorf("batch_workers %d exceeds maximum 64, clamping", c.BatchWorkers))
		c.BatchWorkers = 64
	}

	if c.AutoServiceLimit < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("auto_service_limit %d is negative, clamping to 0", c.AutoServiceLimit))
		c.AutoServiceLimit = 0
	}

	if len(c.BootPhaseMarkers) == 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("boot_phase_markers is empty, boot log time will always be 0"))
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range r.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return r
}
